package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/k-taniguchi/sidekick/pkg/model"
)

// Source is a ChannelSource over a chat-platform export directory: one
// subdirectory per channel, each holding JSON files with message arrays.
// It lets the assistant run fully offline against exported history.
type Source struct {
	dir string
}

// New creates an export-backed source rooted at dir.
func New(dir string) *Source {
	return &Source{dir: dir}
}

// exportMessage is the on-disk message layout.
type exportMessage struct {
	User     string `json:"user"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	Subtype  string `json:"subtype"`
	ThreadTS string `json:"thread_ts"`
}

// exportChannel is one entry of the optional channels.json index.
type exportChannel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsArchived bool   `json:"is_archived"`
}

func (s *Source) ListChannels(ctx context.Context) ([]model.Channel, error) {
	// Prefer the channels.json index when the export ships one.
	if data, err := os.ReadFile(filepath.Join(s.dir, "channels.json")); err == nil {
		var indexed []exportChannel
		if err := json.Unmarshal(data, &indexed); err != nil {
			return nil, goerr.Wrap(err, "failed to parse channels.json")
		}
		channels := make([]model.Channel, 0, len(indexed))
		for _, ch := range indexed {
			channels = append(channels, model.Channel{
				ID:       ch.ID,
				Name:     ch.Name,
				Archived: ch.IsArchived,
			})
		}
		return channels, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read export directory", goerr.V("dir", s.dir))
	}

	var channels []model.Channel
	for _, entry := range entries {
		if !entry.IsDir() || skipChannel(entry.Name()) {
			continue
		}
		channels = append(channels, model.Channel{
			ID:   entry.Name(),
			Name: entry.Name(),
		})
	}
	return channels, nil
}

func (s *Source) RecentMessages(ctx context.Context, channelIDs []string, days int) ([]model.Message, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	var messages []model.Message
	for _, channelID := range channelIDs {
		channelDir := filepath.Join(s.dir, channelID)
		files, err := filepath.Glob(filepath.Join(channelDir, "*.json"))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to glob message files", goerr.V("channel", channelID))
		}

		var raw []exportMessage
		for _, file := range files {
			msgs, err := loadMessages(file)
			if err != nil {
				return nil, err
			}
			for _, msg := range msgs {
				if countable(msg) {
					raw = append(raw, msg)
				}
			}
		}
		messages = append(messages, buildThreads(channelID, raw, cutoff)...)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

// thread is one top-level message with its collected replies. lastActive
// is the newest timestamp in the thread, so an old parent with fresh
// replies still counts as recent.
type thread struct {
	parent     exportMessage
	ts         time.Time
	replies    []string
	lastActive time.Time
}

// buildThreads groups a channel's raw messages into top-level messages
// carrying their thread replies. A reply whose parent is absent from the
// export (e.g. deleted) surfaces as a top-level message.
func buildThreads(channelID string, raw []exportMessage, cutoff time.Time) []model.Message {
	sort.Slice(raw, func(i, j int) bool {
		return parseTS(raw[i].TS).Before(parseTS(raw[j].TS))
	})

	byTS := make(map[string]*thread)
	var ordered []*thread
	for _, msg := range raw {
		if isReply(msg) {
			continue
		}
		th := &thread{parent: msg, ts: parseTS(msg.TS), lastActive: parseTS(msg.TS)}
		byTS[msg.TS] = th
		ordered = append(ordered, th)
	}

	for _, msg := range raw {
		if !isReply(msg) {
			continue
		}
		parent, ok := byTS[msg.ThreadTS]
		if !ok {
			th := &thread{parent: msg, ts: parseTS(msg.TS), lastActive: parseTS(msg.TS)}
			ordered = append(ordered, th)
			continue
		}
		parent.replies = append(parent.replies, msg.Text)
		if at := parseTS(msg.TS); at.After(parent.lastActive) {
			parent.lastActive = at
		}
	}

	var messages []model.Message
	for _, th := range ordered {
		if th.lastActive.Before(cutoff) {
			continue
		}
		messages = append(messages, model.Message{
			Channel:   channelID,
			Author:    th.parent.User,
			Timestamp: th.ts,
			Text:      th.parent.Text,
			Replies:   th.replies,
		})
	}
	return messages
}

// isReply reports whether a message lives inside a thread rather than at
// the top level of the channel.
func isReply(msg exportMessage) bool {
	return msg.ThreadTS != "" && msg.ThreadTS != msg.TS
}

func (s *Source) ActiveChannels(ctx context.Context, userID string, minPosts int) ([]model.ChannelActivity, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read export directory", goerr.V("dir", s.dir))
	}

	var activity []model.ChannelActivity
	for _, entry := range entries {
		if !entry.IsDir() || skipChannel(entry.Name()) {
			continue
		}

		count := 0
		files, err := filepath.Glob(filepath.Join(s.dir, entry.Name(), "*.json"))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to glob message files", goerr.V("channel", entry.Name()))
		}
		for _, file := range files {
			raw, err := loadMessages(file)
			if err != nil {
				return nil, err
			}
			for _, msg := range raw {
				if countable(msg) && msg.User == userID {
					count++
				}
			}
		}

		if count >= minPosts {
			activity = append(activity, model.ChannelActivity{
				Channel:   entry.Name(),
				PostCount: count,
			})
		}
	}

	sort.Slice(activity, func(i, j int) bool {
		return activity[i].PostCount > activity[j].PostCount
	})
	return activity, nil
}

func loadMessages(path string) ([]exportMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read message file", goerr.V("path", path))
	}
	var raw []exportMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, goerr.Wrap(err, "failed to parse message file", goerr.V("path", path))
	}
	return raw, nil
}

// skipChannel drops direct messages, group DMs, and oddly named
// directories, matching how the platform names private conversations.
func skipChannel(name string) bool {
	if strings.HasPrefix(name, "D") || strings.HasPrefix(name, "mpdm-") {
		return true
	}
	cleaned := strings.NewReplacer("-", "", "_", "").Replace(name)
	if cleaned == "" {
		return true
	}
	for _, r := range cleaned {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return true
		}
	}
	return false
}

// countable reports whether a message is a real user post, excluding
// system messages and deleted/changed tombstones.
func countable(msg exportMessage) bool {
	if msg.User == "" {
		return false
	}
	return msg.Subtype != "message_deleted" && msg.Subtype != "message_changed"
}

// parseTS parses the platform's "seconds.micros" timestamp format.
func parseTS(ts string) time.Time {
	seconds, _, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
