package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ZhenchongLi/oipromot/internal/config"
	"github.com/ZhenchongLi/oipromot/internal/optimizer"
	"github.com/ZhenchongLi/oipromot/internal/session"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Optimize requirements interactively in the terminal",
		Long: `Starts an interactive loop against the configured backend.

Each message is optimized into a structured requirement description.
Follow-up messages refine the previous result.

Commands:
  /n    start a new conversation
  /q    quit
  /t    prefix a message with /t for thinking mode`,
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	profiles, err := optimizer.LoadProfiles(cfg.PromptProfilePath)
	if err != nil {
		return err
	}
	backend := optimizer.New(cfg.AI, profiles)
	sessions := session.NewManager(backend, nil, cfg.SessionTTL)

	sess, err := sessions.Create("local")
	if err != nil {
		return err
	}

	fmt.Printf("Connected to %s (model %s)\n", cfg.AI.BaseURL, cfg.AI.Model)
	fmt.Println("Describe a feature to optimize. /n new conversation, /q quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/q", "/quit", "/exit":
			fmt.Println("Bye.")
			return nil
		case "/n", "/new":
			if err := sessions.Reset(sess.ID); err != nil {
				return err
			}
			fmt.Println("Started a new conversation.")
			continue
		}

		start := time.Now()
		fmt.Println("Optimizing...")

		res, err := sessions.Submit(cmd.Context(), sess.ID, line)
		if err != nil {
			printTurnError(err, time.Since(start))
			continue
		}

		fmt.Println()
		fmt.Println(res.Content)
		fmt.Printf("\n[%s mode, %.2fs]", res.Mode, res.Latency.Seconds())
		if res.Refined {
			fmt.Print(" (refined)")
		}
		fmt.Println()
	}
	return scanner.Err()
}

func printTurnError(err error, elapsed time.Duration) {
	if oe, ok := optimizer.AsError(err); ok {
		fmt.Printf("Error: %s\n", oe.Message)
		if oe.Suggestion != "" {
			fmt.Printf("Hint: %s\n", oe.Suggestion)
		}
		return
	}
	fmt.Printf("Error after %.2fs: %v\n", elapsed.Seconds(), err)
}
