package channels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/k-taniguchi/sidekick/pkg/interfaces"
	"github.com/k-taniguchi/sidekick/pkg/tool"
)

// Defaults mirroring the platform collaborator's limits.
const (
	DefaultLookbackDays    = 7
	DefaultMinPosts        = 10
	MaxChannelsPerBatch    = 5
	maxMessagesInFormatted = 200
)

// Channels exposes the chat platform's read-only query surface as
// capabilities: list_channels, recent_messages, and active_channels.
type Channels struct {
	source   interfaces.ChannelSource
	lookback int64
	minPosts int64
}

// Option configures the channel query tool.
type Option func(*Channels)

// WithLookback overrides the default lookback window in days.
func WithLookback(days int) Option {
	return func(x *Channels) {
		x.lookback = int64(days)
	}
}

// WithMinPosts overrides the default minimum post count.
func WithMinPosts(minPosts int) Option {
	return func(x *Channels) {
		x.minPosts = int64(minPosts)
	}
}

// New creates the channel query tool.
func New(opts ...Option) *Channels {
	x := &Channels{}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Flags returns CLI flags for this tool
func (x *Channels) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "lookback-days",
			Sources:     cli.EnvVars("SIDEKICK_LOOKBACK_DAYS"),
			Usage:       "Default lookback window for recent_messages",
			Value:       DefaultLookbackDays,
			Destination: &x.lookback,
		},
		&cli.IntFlag{
			Name:        "min-posts",
			Sources:     cli.EnvVars("SIDEKICK_MIN_POSTS"),
			Usage:       "Default minimum post count for active_channels",
			Value:       DefaultMinPosts,
			Destination: &x.minPosts,
		},
	}
}

// Init initializes the tool
func (x *Channels) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if client.Source == nil {
		return false, nil
	}
	x.source = client.Source
	if x.lookback == 0 {
		x.lookback = DefaultLookbackDays
	}
	if x.minPosts == 0 {
		x.minPosts = DefaultMinPosts
	}
	return true, nil
}

// Prompt returns additional information to be added to the system prompt
func (x *Channels) Prompt(ctx context.Context) string {
	return `To answer questions about project status or people's activity, first discover channels with list_channels or active_channels, then read the actual messages with recent_messages. Never summarize activity from post counts alone; always fetch messages before concluding. recent_messages accepts at most ` +
		fmt.Sprintf("%d", MaxChannelsPerBatch) + ` channels per call.`
}

// Declarations returns the capabilities this tool exposes
func (x *Channels) Declarations() []tool.Declaration {
	return []tool.Declaration{
		{
			Name:        "list_channels",
			Description: "List all visible channels with their IDs, names, and archived state",
			ReadOnly:    true,
			Schema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "recent_messages",
			Description: "Fetch recent messages (with thread replies) from up to 5 channels",
			ReadOnly:    true,
			Schema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"channel_ids": {
						Type:        "array",
						Description: "Channel IDs to read, at most 5",
						Items:       &jsonschema.Schema{Type: "string"},
					},
					"days": {
						Type:        "integer",
						Description: "Lookback window in days (default 7)",
					},
				},
				Required: []string{"channel_ids"},
			},
		},
		{
			Name:        "active_channels",
			Description: "Find channels where a user has posted at least min_posts messages",
			ReadOnly:    true,
			Schema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"user_id": {
						Type:        "string",
						Description: "User ID to look up",
					},
					"min_posts": {
						Type:        "integer",
						Description: "Minimum post count (default 10)",
					},
				},
				Required: []string{"user_id"},
			},
		},
	}
}

// Execute runs the named capability with validated arguments
func (x *Channels) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "list_channels":
		return x.listChannels(ctx)
	case "recent_messages":
		return x.recentMessages(ctx, args)
	case "active_channels":
		return x.activeChannels(ctx, args)
	default:
		return "", goerr.New("unknown capability", goerr.V("name", name))
	}
}

func (x *Channels) listChannels(ctx context.Context) (string, error) {
	channels, err := x.source.ListChannels(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to list channels")
	}
	if len(channels) == 0 {
		return "No channels found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d channel(s):\n", len(channels))
	for _, ch := range channels {
		fmt.Fprintf(&b, "- %s (id: %s)", ch.Name, ch.ID)
		if ch.Archived {
			b.WriteString(" [archived]")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (x *Channels) recentMessages(ctx context.Context, args map[string]any) (string, error) {
	ids := stringSlice(args["channel_ids"])
	if len(ids) == 0 {
		return "", goerr.New("channel_ids must not be empty")
	}
	if len(ids) > MaxChannelsPerBatch {
		return "", goerr.New("too many channels requested",
			goerr.V("requested", len(ids)), goerr.V("max", MaxChannelsPerBatch))
	}

	days := intArg(args, "days", int(x.lookback))
	messages, err := x.source.RecentMessages(ctx, ids, days)
	if err != nil {
		return "", goerr.Wrap(err, "failed to fetch recent messages")
	}
	if len(messages) == 0 {
		return fmt.Sprintf("No messages in the last %d day(s).", days), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d message(s) in the last %d day(s):\n", len(messages), days)
	for i, msg := range messages {
		if i >= maxMessagesInFormatted {
			fmt.Fprintf(&b, "... %d more message(s) truncated\n", len(messages)-i)
			break
		}
		fmt.Fprintf(&b, "[%s] %s in #%s: %s\n",
			msg.Timestamp.Format(time.RFC3339), msg.Author, msg.Channel, msg.Text)
		for _, reply := range msg.Replies {
			fmt.Fprintf(&b, "    ↳ %s\n", reply)
		}
	}
	return b.String(), nil
}

func (x *Channels) activeChannels(ctx context.Context, args map[string]any) (string, error) {
	userID, _ := args["user_id"].(string)
	if userID == "" {
		return "", goerr.New("user_id must not be empty")
	}

	minPosts := intArg(args, "min_posts", int(x.minPosts))
	activity, err := x.source.ActiveChannels(ctx, userID, minPosts)
	if err != nil {
		return "", goerr.Wrap(err, "failed to fetch active channels")
	}
	if len(activity) == 0 {
		return fmt.Sprintf("User %s has no channels with %d+ posts.", userID, minPosts), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User %s is active in %d channel(s):\n", userID, len(activity))
	for _, a := range activity {
		fmt.Fprintf(&b, "- %s: %d post(s)\n", a.Channel, a.PostCount)
	}
	b.WriteString("Note: fetch recent_messages before summarizing what the user worked on.\n")
	return b.String(), nil
}

// intArg reads an integer argument that the model may send as float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
