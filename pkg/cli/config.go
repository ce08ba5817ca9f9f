package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/k-taniguchi/sidekick/pkg/adapter"
	"github.com/k-taniguchi/sidekick/pkg/interfaces"
	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/policy"
	"github.com/k-taniguchi/sidekick/pkg/repository"
	"github.com/k-taniguchi/sidekick/pkg/service/export"
	"github.com/k-taniguchi/sidekick/pkg/service/mcp"
	"github.com/k-taniguchi/sidekick/pkg/tool"
	"github.com/k-taniguchi/sidekick/pkg/usecase/assist"
	"github.com/k-taniguchi/sidekick/pkg/utils/logging"
)

// config holds configuration values
type config struct {
	logLevel  string
	logFormat string

	// Memory store
	project  string
	database string

	// Model
	geminiProject  string
	geminiLocation string
	geminiModel    string
	geminiBaseURL  string

	// Collaborators
	policyDir string
	mcpConfig string
	bucket    string
	exportDir string

	// Session manager tunables
	maxToolIterations int64
	primaryCadence    int64
	specialistCadence int64
	lookbackDays      int64
	minPosts          int64
	allowedBots       []string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("SIDEKICK_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log output format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("SIDEKICK_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID for Firestore (empty uses the in-memory store)",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// llmFlags returns flags for model-related configuration
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Generative model identifier",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "gemini-base-url",
			Usage:       "Override the model endpoint",
			Sources:     cli.EnvVars("GEMINI_BASE_URL"),
			Destination: &cfg.geminiBaseURL,
		},
	}
}

// assistFlags returns flags for the session manager and its collaborators
func assistFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego approval policies",
			Sources:     cli.EnvVars("SIDEKICK_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "mcp-config",
			Usage:       "Path to MCP server configuration YAML",
			Sources:     cli.EnvVars("SIDEKICK_MCP_CONFIG"),
			Destination: &cfg.mcpConfig,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for transcript archives",
			Sources:     cli.EnvVars("SIDEKICK_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "export-dir",
			Usage:       "Directory of an exported workspace to answer channel queries from",
			Sources:     cli.EnvVars("SIDEKICK_EXPORT_DIR"),
			Destination: &cfg.exportDir,
		},
		&cli.IntFlag{
			Name:        "max-tool-iterations",
			Usage:       "Tool call rounds allowed per message",
			Value:       assist.DefaultMaxToolIterations,
			Sources:     cli.EnvVars("SIDEKICK_MAX_TOOL_ITERATIONS"),
			Destination: &cfg.maxToolIterations,
		},
		&cli.IntFlag{
			Name:        "primary-cadence",
			Usage:       "Turns between reflections for the primary role",
			Value:       assist.DefaultPrimaryCadence,
			Sources:     cli.EnvVars("SIDEKICK_PRIMARY_CADENCE"),
			Destination: &cfg.primaryCadence,
		},
		&cli.IntFlag{
			Name:        "specialist-cadence",
			Usage:       "Turns between reflections for specialist roles",
			Value:       assist.DefaultSpecialistCadence,
			Sources:     cli.EnvVars("SIDEKICK_SPECIALIST_CADENCE"),
			Destination: &cfg.specialistCadence,
		},
		&cli.IntFlag{
			Name:        "lookback-days",
			Usage:       "Default lookback window for channel queries",
			Sources:     cli.EnvVars("SIDEKICK_LOOKBACK_DAYS"),
			Destination: &cfg.lookbackDays,
		},
		&cli.IntFlag{
			Name:        "min-posts",
			Usage:       "Default activity threshold for channel queries",
			Sources:     cli.EnvVars("SIDEKICK_MIN_POSTS"),
			Destination: &cfg.minPosts,
		},
		&cli.StringSliceFlag{
			Name:        "allowed-bot",
			Usage:       "Bot sender ID whose messages are processed (repeatable)",
			Sources:     cli.EnvVars("SIDEKICK_ALLOWED_BOTS"),
			Destination: &cfg.allowedBots,
		},
	}
}

// newStore creates the memory store. Without a project it falls back to
// the in-memory store, which is enough for chat and tests.
func (cfg *config) newStore(ctx context.Context) (repository.MemoryStore, error) {
	if cfg.project == "" {
		return repository.NewMemStore(), nil
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	store, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memory store")
	}
	return store, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	var opts []adapter.GeminiOption
	if cfg.geminiModel != "" {
		opts = append(opts, adapter.WithModel(cfg.geminiModel))
	}
	if cfg.geminiBaseURL != "" {
		opts = append(opts, adapter.WithBaseURL(cfg.geminiBaseURL))
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
}

// newManager assembles the session manager from the configured
// collaborators. Optional pieces stay nil when unconfigured.
func (cfg *config) newManager(ctx context.Context, responder interfaces.Responder) (*assist.Manager, error) {
	store, err := cfg.newStore(ctx)
	if err != nil {
		return nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	approver, err := policy.New(ctx, cfg.policyDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load approval policy")
	}

	var archive adapter.Storage
	if cfg.bucket != "" {
		archive, err = adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create archive storage")
		}
	}

	var source interfaces.ChannelSource
	if cfg.exportDir != "" {
		if _, err := os.Stat(cfg.exportDir); err != nil {
			return nil, goerr.Wrap(err, "export directory is not readable",
				goerr.V("dir", cfg.exportDir))
		}
		source = export.New(cfg.exportDir)
	}

	var extraTools []tool.Tool
	if cfg.mcpConfig != "" {
		mcpTool, err := mcp.LoadAndConnect(ctx, cfg.mcpConfig)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to connect MCP servers")
		}
		// LoadAndConnect returns a nil tool when no server connected.
		if mcpTool != nil {
			extraTools = append(extraTools, mcpTool)
		}
	}

	return assist.New(assist.NewInput{
		Store:      store,
		Gemini:     gemini,
		Source:     source,
		Responder:  responder,
		Approver:   approver,
		Archive:    archive,
		ExtraTools: extraTools,
		Config: assist.Config{
			MaxToolIterations: int(cfg.maxToolIterations),
			ReflectCadence: map[model.Role]int{
				model.RolePrimary:   int(cfg.primaryCadence),
				model.RoleStatus:    int(cfg.specialistCadence),
				model.RoleActivity:  int(cfg.specialistCadence),
				model.RoleArchivist: int(cfg.specialistCadence),
			},
			LookbackDays: int(cfg.lookbackDays),
			MinPosts:     int(cfg.minPosts),
			AllowedBots:  cfg.allowedBots,
		},
	})
}

// setupLogger installs the configured logger as the default.
func (cfg *config) setupLogger() {
	logging.SetDefault(logging.New(cfg.logLevel, logging.Format(cfg.logFormat), os.Stderr))
}
