package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ZhenchongLi/oipromot/internal/api"
	"github.com/ZhenchongLi/oipromot/internal/config"
	"github.com/ZhenchongLi/oipromot/internal/store"
)

var flagPassword string

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserCreate,
	}
	create.Flags().StringVar(&flagPassword, "password", "", "password (prompted if omitted)")

	cmd.AddCommand(create)
	return cmd
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	password := flagPassword
	if password == "" {
		fmt.Print("Password: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			password = strings.TrimSpace(scanner.Text())
		}
	}
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	user, err := api.CreateUser(cmd.Context(), repo, args[0], password)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("username %q is already taken", args[0])
		}
		return err
	}

	fmt.Printf("Created user %s (%s)\n", user.Username, user.ID)
	return nil
}
