package export_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/k-taniguchi/sidekick/pkg/service/export"
)

func ts(t time.Time) string {
	return fmt.Sprintf("%d.000100", t.Unix())
}

func writeMessages(t *testing.T, dir, channel, file string, messages []map[string]any) {
	t.Helper()
	channelDir := filepath.Join(dir, channel)
	gt.NoError(t, os.MkdirAll(channelDir, 0755))
	data, err := json.Marshal(messages)
	gt.NoError(t, err)
	gt.NoError(t, os.WriteFile(filepath.Join(channelDir, file), data, 0644))
}

func TestListChannelsFromDirectories(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, name := range []string{"project-alpha", "random", "D123ABC", "mpdm-alice--bob-1"} {
		gt.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0755))
	}

	channels, err := export.New(dir).ListChannels(ctx)
	gt.NoError(t, err)

	// Direct messages and group DMs are never listed.
	gt.A(t, channels).Length(2)
	names := map[string]bool{}
	for _, ch := range channels {
		names[ch.Name] = true
	}
	gt.True(t, names["project-alpha"])
	gt.True(t, names["random"])
}

func TestListChannelsPrefersIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	index := `[{"id": "C01", "name": "project-alpha", "is_archived": false},
	           {"id": "C02", "name": "legacy", "is_archived": true}]`
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "channels.json"), []byte(index), 0644))

	channels, err := export.New(dir).ListChannels(ctx)
	gt.NoError(t, err)
	gt.A(t, channels).Length(2)
	gt.Equal(t, channels[0].ID, "C01")
	gt.True(t, channels[1].Archived)
}

func TestRecentMessagesFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	recent := time.Now().Add(-24 * time.Hour)
	older := time.Now().Add(-48 * time.Hour)
	ancient := time.Now().AddDate(0, 0, -30)

	writeMessages(t, dir, "project-alpha", "2026-08-30.json", []map[string]any{
		{"user": "bob", "text": "migration review done", "ts": ts(recent)},
		{"user": "alice", "text": "deploy is blocked", "ts": ts(older)},
		{"user": "bob", "text": "edited away", "ts": ts(recent), "subtype": "message_changed"},
		{"user": "", "text": "bot chatter", "ts": ts(recent)},
		{"user": "carol", "text": "long forgotten", "ts": ts(ancient)},
	})

	messages, err := export.New(dir).RecentMessages(ctx, []string{"project-alpha"}, 7)
	gt.NoError(t, err)

	// Tombstones, system posts, and out-of-window messages are gone;
	// what remains is ordered oldest first.
	gt.A(t, messages).Length(2)
	gt.Equal(t, messages[0].Text, "deploy is blocked")
	gt.Equal(t, messages[1].Text, "migration review done")
	gt.Equal(t, messages[1].Author, "bob")
}

func TestRecentMessagesGroupsThreadReplies(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	parent := time.Now().Add(-24 * time.Hour)
	reply1 := time.Now().Add(-23 * time.Hour)
	reply2 := time.Now().Add(-22 * time.Hour)
	loner := time.Now().Add(-12 * time.Hour)

	writeMessages(t, dir, "project-alpha", "a.json", []map[string]any{
		{"user": "alice", "text": "deploy is blocked", "ts": ts(parent)},
		{"user": "bob", "text": "waiting on API keys", "ts": ts(reply1), "thread_ts": ts(parent)},
		{"user": "alice", "text": "vendor pinged", "ts": ts(reply2), "thread_ts": ts(parent)},
		{"user": "carol", "text": "standup moved to 10am", "ts": ts(loner)},
	})

	messages, err := export.New(dir).RecentMessages(ctx, []string{"project-alpha"}, 7)
	gt.NoError(t, err)

	// Replies ride on their parent, oldest first, never at the top level.
	gt.A(t, messages).Length(2)
	gt.Equal(t, messages[0].Text, "deploy is blocked")
	gt.Equal(t, messages[0].Replies, []string{"waiting on API keys", "vendor pinged"})
	gt.Equal(t, messages[1].Text, "standup moved to 10am")
	gt.A(t, messages[1].Replies).Length(0)
}

func TestRecentMessagesOldThreadWithFreshReply(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ancient := time.Now().AddDate(0, 0, -30)
	fresh := time.Now().Add(-1 * time.Hour)

	writeMessages(t, dir, "project-alpha", "a.json", []map[string]any{
		{"user": "alice", "text": "kickoff notes", "ts": ts(ancient)},
		{"user": "bob", "text": "resurrecting this thread", "ts": ts(fresh), "thread_ts": ts(ancient)},
	})

	messages, err := export.New(dir).RecentMessages(ctx, []string{"project-alpha"}, 7)
	gt.NoError(t, err)

	// The parent is outside the window but the thread is active.
	gt.A(t, messages).Length(1)
	gt.Equal(t, messages[0].Text, "kickoff notes")
	gt.Equal(t, messages[0].Replies, []string{"resurrecting this thread"})
}

func TestRecentMessagesOrphanReply(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	recent := time.Now().Add(-2 * time.Hour)
	writeMessages(t, dir, "project-alpha", "a.json", []map[string]any{
		{"user": "bob", "text": "replying to a deleted message", "ts": ts(recent), "thread_ts": "1000000000.000100"},
	})

	messages, err := export.New(dir).RecentMessages(ctx, []string{"project-alpha"}, 7)
	gt.NoError(t, err)

	// A reply without its parent still surfaces instead of vanishing.
	gt.A(t, messages).Length(1)
	gt.Equal(t, messages[0].Text, "replying to a deleted message")
}

func TestActiveChannels(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	now := time.Now()
	var busy []map[string]any
	for i := 0; i < 12; i++ {
		busy = append(busy, map[string]any{"user": "bob", "text": "update", "ts": ts(now)})
	}
	writeMessages(t, dir, "project-alpha", "a.json", busy)
	writeMessages(t, dir, "random", "a.json", []map[string]any{
		{"user": "bob", "text": "hello", "ts": ts(now)},
	})
	writeMessages(t, dir, "D123ABC", "a.json", busy)

	activity, err := export.New(dir).ActiveChannels(ctx, "bob", 10)
	gt.NoError(t, err)

	// Only channels over the threshold, never DMs.
	gt.A(t, activity).Length(1)
	gt.Equal(t, activity[0].Channel, "project-alpha")
	gt.Equal(t, activity[0].PostCount, 12)
}

func TestActiveChannelsNoActivity(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeMessages(t, dir, "random", "a.json", []map[string]any{
		{"user": "alice", "text": "hi", "ts": ts(time.Now())},
	})

	activity, err := export.New(dir).ActiveChannels(ctx, "bob", 1)
	gt.NoError(t, err)
	gt.A(t, activity).Length(0)
}
