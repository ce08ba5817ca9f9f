package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/k-taniguchi/sidekick/pkg/utils/logging"
)

func improveCommand() *cli.Command {
	var (
		cfg    config
		userID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User whose assistant instructions are improved",
			Value:       "local",
			Sources:     cli.EnvVars("SIDEKICK_USER"),
			Destination: &userID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, assistFlags(&cfg)...)

	return &cli.Command{
		Name:      "improve",
		Usage:     "Feed explicit feedback into the reflection engine",
		ArgsUsage: "<feedback...>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()
			ctx = logging.With(ctx, logging.Default())

			feedback := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if feedback == "" {
				return goerr.New("feedback text is required")
			}

			manager, err := cfg.newManager(ctx, nil)
			if err != nil {
				return err
			}

			summary, err := manager.Improve(ctx, userID, feedback)
			if err != nil {
				return goerr.Wrap(err, "failed to apply feedback")
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", summary)
			return nil
		},
	}
}
