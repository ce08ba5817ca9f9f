package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/utils/logging"
)

func memoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect and maintain stored memory records",
		Commands: []*cli.Command{
			memoryListCommand(),
			memorySearchCommand(),
			memoryDeleteCommand(),
		},
	}
}

func parseNamespace(raw string) (model.NamespacePath, error) {
	segments := strings.Split(strings.Trim(raw, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return nil, goerr.New("namespace is required, e.g. users/alice/preferences")
	}
	return model.NamespacePath(segments), nil
}

func memoryListCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "list",
		Usage:     "List keys in a namespace",
		ArgsUsage: "<namespace>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()
			ctx = logging.With(ctx, logging.Default())

			ns, err := parseNamespace(c.Args().First())
			if err != nil {
				return err
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			keys, err := store.ListKeys(ctx, ns)
			if err != nil {
				return goerr.Wrap(err, "failed to list keys")
			}
			for key := range keys {
				fmt.Fprintf(c.Root().Writer, "%s\n", key)
			}
			return nil
		},
	}
}

func memorySearchCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "search",
		Usage:     "Search a namespace subtree by relevance",
		ArgsUsage: "<namespace> <query>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()
			ctx = logging.With(ctx, logging.Default())

			ns, err := parseNamespace(c.Args().First())
			if err != nil {
				return err
			}
			query := strings.Join(c.Args().Slice()[1:], " ")

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			records, err := store.Search(ctx, ns, query)
			if err != nil {
				return goerr.Wrap(err, "failed to search")
			}
			for _, record := range records {
				fmt.Fprintf(c.Root().Writer, "%s/%s\t%s\n",
					record.Namespace.String(), record.Key, record.Value)
			}
			return nil
		},
	}
}

func memoryDeleteCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete one record",
		ArgsUsage: "<namespace> <key>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()
			ctx = logging.With(ctx, logging.Default())

			ns, err := parseNamespace(c.Args().First())
			if err != nil {
				return err
			}
			key := c.Args().Get(1)
			if key == "" {
				return goerr.New("key is required")
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			if err := store.Delete(ctx, ns, key); err != nil {
				return goerr.Wrap(err, "failed to delete record")
			}
			return nil
		},
	}
}
