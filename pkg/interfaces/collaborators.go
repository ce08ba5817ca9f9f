package interfaces

import (
	"context"

	"github.com/k-taniguchi/sidekick/pkg/model"
)

// InboundSource delivers chat events to the session manager. Receive
// blocks until an event arrives, the source is exhausted (ok=false), or
// the context is canceled.
type InboundSource interface {
	Receive(ctx context.Context) (event model.InboundEvent, ok bool, err error)
}

// Responder delivers a reply into a conversation thread. Delivery is
// best-effort; the implementation logs failures and does not retry.
type Responder interface {
	Respond(ctx context.Context, threadID, text string) error
}

// ChannelSource exposes the chat platform's read-only query surface.
// All operations are pure queries with no side effects and are safe to
// retry.
type ChannelSource interface {
	// ListChannels returns all visible channels.
	ListChannels(ctx context.Context) ([]model.Channel, error)

	// RecentMessages returns messages from up to maxChannelsPerBatch
	// channels over the last days days, ordered by timestamp.
	RecentMessages(ctx context.Context, channelIDs []string, days int) ([]model.Message, error)

	// ActiveChannels returns channels where the user posted at least
	// minPosts messages.
	ActiveChannels(ctx context.Context, userID string, minPosts int) ([]model.ChannelActivity, error)
}

// PreferenceExtractor infers preference facts from one exchange. It is
// best-effort: implementations should return an empty map rather than an
// error for unparseable content, and callers must never fail a turn on
// extraction errors.
type PreferenceExtractor interface {
	Extract(ctx context.Context, userText, replyText string) (map[string]string, error)
}
