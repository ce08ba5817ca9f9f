package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/utils/logging"
)

func chatCommand() *cli.Command {
	var (
		cfg    config
		userID string
		thread string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID to converse as",
			Value:       "local",
			Sources:     cli.EnvVars("SIDEKICK_USER"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "thread",
			Aliases:     []string{"t"},
			Usage:       "Thread ID to resume (empty starts a new thread)",
			Sources:     cli.EnvVars("SIDEKICK_THREAD"),
			Destination: &thread,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, assistFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive conversation with the assistant",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()
			ctx = logging.With(ctx, logging.Default())

			manager, err := cfg.newManager(ctx, nil)
			if err != nil {
				return err
			}

			if thread == "" {
				thread = "chat-" + uuid.New().String()
			}

			rl, err := readline.New("> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize prompt")
			}
			defer rl.Close()

			fmt.Fprintf(c.Root().Writer, "Thread %s as %s. Type 'exit' to quit.\n", thread, userID)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				message := strings.TrimSpace(line)
				if message == "" {
					continue
				}
				if message == "exit" || message == "quit" {
					break
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
					spinner.WithWriter(c.Root().ErrWriter))
				sp.Suffix = " thinking..."
				sp.Start()

				reply, err := manager.Process(ctx, model.InboundEvent{
					EventID:   uuid.New().String(),
					ThreadID:  thread,
					UserID:    userID,
					Text:      message,
					Timestamp: time.Now(),
				})
				sp.Stop()

				if err != nil {
					return goerr.Wrap(err, "failed to process message")
				}
				if reply != "" {
					fmt.Fprintf(c.Root().Writer, "%s\n", reply)
				}
			}

			fmt.Fprintf(c.Root().Writer, "\nBye.\n")
			return nil
		},
	}
}
