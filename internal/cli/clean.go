package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZhenchongLi/oipromot/internal/optimizer"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [text]",
		Short: "Strip filler openers from raw input without calling the backend",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(optimizer.SimpleClean(strings.Join(args, " ")))
		},
	}
}
