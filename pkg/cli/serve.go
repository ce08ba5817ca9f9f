package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/utils/logging"
)

func serveCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, assistFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Process inbound messages as JSON lines on stdin, replies as JSON lines on stdout",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()
			ctx = logging.With(ctx, logging.Default())

			responder := &lineResponder{w: c.Root().Writer}
			manager, err := cfg.newManager(ctx, responder)
			if err != nil {
				return err
			}

			source := newLineSource(os.Stdin)
			return manager.Run(ctx, source)
		},
	}
}

// inboundLine is the wire form of one message on stdin.
type inboundLine struct {
	EventID   string `json:"event_id"`
	ThreadID  string `json:"thread_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	IsBot     bool   `json:"is_bot"`
	SenderID  string `json:"sender_id"`
}

type outboundLine struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
}

// lineSource reads newline-delimited JSON events. Malformed lines are
// skipped with a warning so one bad event cannot stall the stream.
type lineSource struct {
	scanner *bufio.Scanner
}

func newLineSource(r io.Reader) *lineSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &lineSource{scanner: scanner}
}

func (s *lineSource) Receive(ctx context.Context) (model.InboundEvent, bool, error) {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return model.InboundEvent{}, false, err
		}

		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var in inboundLine
		if err := json.Unmarshal(line, &in); err != nil {
			logging.From(ctx).Warn("skipping malformed event line", "error", err)
			continue
		}

		ts, err := time.Parse(time.RFC3339, in.Timestamp)
		if err != nil {
			ts = time.Now()
		}

		return model.InboundEvent{
			EventID:   in.EventID,
			ThreadID:  in.ThreadID,
			UserID:    in.UserID,
			Text:      in.Text,
			Timestamp: ts,
			IsBot:     in.IsBot,
			SenderID:  in.SenderID,
		}, true, nil
	}

	if err := s.scanner.Err(); err != nil {
		return model.InboundEvent{}, false, goerr.Wrap(err, "failed to read event stream")
	}
	return model.InboundEvent{}, false, nil
}

// lineResponder writes replies as JSON lines.
type lineResponder struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *lineResponder) Respond(ctx context.Context, threadID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enc := json.NewEncoder(r.w)
	if err := enc.Encode(outboundLine{ThreadID: threadID, Text: text}); err != nil {
		return goerr.Wrap(err, "failed to write reply", goerr.V("thread", threadID))
	}
	return nil
}
