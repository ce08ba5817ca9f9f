package assist

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/k-taniguchi/sidekick/pkg/adapter"
	"github.com/k-taniguchi/sidekick/pkg/interfaces"
	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/policy"
	"github.com/k-taniguchi/sidekick/pkg/repository"
	"github.com/k-taniguchi/sidekick/pkg/tool"
	"github.com/k-taniguchi/sidekick/pkg/usecase/reflect"
	"github.com/k-taniguchi/sidekick/pkg/utils/logging"
)

const (
	// DefaultMaxToolIterations bounds the Modeling/ToolDispatch loop per
	// inbound message.
	DefaultMaxToolIterations = 8

	// Reflection cadences: the primary role reflects more often than
	// specialists.
	DefaultPrimaryCadence    = 10
	DefaultSpecialistCadence = 25

	fallbackUnableToComplete = "I wasn't able to complete this request within my tool budget. Please try rephrasing or narrowing the question."
	fallbackModelFailure     = "I ran into a problem talking to my language model. Your message was not lost; please try again in a moment."
)

// Config carries the session manager's tunables.
type Config struct {
	MaxToolIterations int
	ReflectCadence    map[model.Role]int
	LookbackDays      int
	MinPosts          int

	// AllowedBots lists bot sender IDs whose messages are processed;
	// all other bot-authored events are dropped to avoid loops.
	AllowedBots []string
}

func (c Config) maxIterations() int {
	if c.MaxToolIterations > 0 {
		return c.MaxToolIterations
	}
	return DefaultMaxToolIterations
}

func (c Config) cadence(role model.Role) int {
	if k, ok := c.ReflectCadence[role]; ok && k > 0 {
		return k
	}
	if role == model.RolePrimary {
		return DefaultPrimaryCadence
	}
	return DefaultSpecialistCadence
}

// NewInput contains dependencies for creating a Manager.
type NewInput struct {
	Store     repository.MemoryStore
	Gemini    adapter.Gemini
	Source    interfaces.ChannelSource
	Responder interfaces.Responder

	// Approver gates every capability call. Nil approves everything.
	Approver policy.Approver

	// Extractor infers preference facts from exchanges. Nil uses the
	// model-backed default.
	Extractor interfaces.PreferenceExtractor

	// Reflector rewrites role instructions. Nil builds one over Store
	// and Gemini.
	Reflector *reflect.Reflector

	// Archive receives raw transcript snapshots. Optional.
	Archive adapter.Storage

	// ExtraTools are appended to every session's capability registry,
	// e.g. tools imported from MCP servers.
	ExtraTools []tool.Tool

	Config Config
}

// Manager owns the session table and drives the turn state machine:
// Idle -> Routing -> Modeling <-> (Approval -> ToolDispatch) ->
// Responding -> Idle. One Manager serves many concurrent threads; each
// session is single-writer.
type Manager struct {
	store      repository.MemoryStore
	gemini     adapter.Gemini
	source     interfaces.ChannelSource
	responder  interfaces.Responder
	approver   policy.Approver
	extractor  interfaces.PreferenceExtractor
	reflector  *reflect.Reflector
	archive    adapter.Storage
	extraTools []tool.Tool
	cfg        Config

	mu       sync.Mutex
	sessions map[string]*sessionState
	seen     *dedupWindow
}

// New creates a session manager.
func New(input NewInput) (*Manager, error) {
	if input.Store == nil {
		return nil, goerr.New("memory store is required")
	}
	if input.Gemini == nil {
		return nil, goerr.New("gemini adapter is required")
	}

	extractor := input.Extractor
	if extractor == nil {
		extractor = NewExtractor(input.Gemini)
	}

	reflector := input.Reflector
	if reflector == nil {
		reflector = reflect.New(input.Store, input.Gemini)
	}

	return &Manager{
		store:      input.Store,
		gemini:     input.Gemini,
		source:     input.Source,
		responder:  input.Responder,
		approver:   input.Approver,
		extractor:  extractor,
		reflector:  reflector,
		archive:    input.Archive,
		extraTools: input.ExtraTools,
		cfg:        input.Config,
		sessions:   make(map[string]*sessionState),
		seen:       newDedupWindow(),
	}, nil
}

// Run consumes events from the source until it is exhausted or the
// context ends. Turn-level faults are logged, not fatal; only a
// storage failure on turn persistence stops the loop.
func (m *Manager) Run(ctx context.Context, source interfaces.InboundSource) error {
	logger := logging.From(ctx)

	for {
		event, ok, err := source.Receive(ctx)
		if err != nil {
			return goerr.Wrap(err, "failed to receive inbound event")
		}
		if !ok {
			return nil
		}

		if err := m.HandleEvent(ctx, event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("failed to handle event",
				"thread", event.ThreadID, "error", err)
		}
	}
}

// HandleEvent processes one inbound message and delivers the reply via
// the responder. Delivery is best-effort; a persistence failure after
// retry is the only escalated error.
func (m *Manager) HandleEvent(ctx context.Context, event model.InboundEvent) error {
	reply, err := m.Process(ctx, event)
	if reply != "" && m.responder != nil {
		if respondErr := m.responder.Respond(ctx, event.ThreadID, reply); respondErr != nil {
			logging.From(ctx).Warn("failed to deliver reply",
				"thread", event.ThreadID, "error", respondErr)
		}
	}
	return err
}

// Process runs one full turn for the event and returns the reply text.
// Duplicate and ignorable events yield an empty reply and nil error.
func (m *Manager) Process(ctx context.Context, event model.InboundEvent) (string, error) {
	logger := logging.From(ctx)

	if event.IsBot && !slices.Contains(m.cfg.AllowedBots, event.SenderID) {
		return "", nil
	}
	if m.seen.contains(event.EventID) {
		logger.Debug("skipping duplicate event", "event_id", event.EventID)
		return "", nil
	}

	st := m.sessionFor(event)
	st.mu.Lock()
	defer st.mu.Unlock()

	session := st.session
	session.ActiveRole = route(session)

	turn, err := m.runLoop(ctx, session, event)
	if err != nil {
		if ctx.Err() != nil {
			// Abandoned turn: no partial state, nothing delivered. A
			// redelivery of the event is processed normally.
			return "", ctx.Err()
		}
		// ModelFault: fallback is still delivered, state is preserved.
		logger.Error("turn failed at model boundary",
			"thread", session.ThreadID, "error", err)
		m.seen.remember(event.EventID)
		return fallbackModelFailure, nil
	}

	if err := m.commitTurn(ctx, session, turn); err != nil {
		// The event stays unseen so a redelivery can retry the turn.
		return "", err
	}

	m.seen.remember(event.EventID)
	m.afterTurn(ctx, session, turn)
	return turn.Output, nil
}

// Evict removes a session from the table. Intended for an external idle
// eviction policy; a later message for the thread starts fresh.
func (m *Manager) Evict(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, threadID)
}

func (m *Manager) sessionFor(event model.InboundEvent) *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.sessions[event.ThreadID]; ok {
		return st
	}

	st := &sessionState{
		session: &model.Session{
			ID:       model.NewSessionID(),
			ThreadID: event.ThreadID,
			UserID:   event.UserID,
		},
	}
	m.sessions[event.ThreadID] = st
	return st
}

// commitTurn makes the turn durable and visible: the conversation
// record is persisted to the thread scope, the per-user history scope,
// and the role scope, then the transcript and counters advance. A
// storage failure is retried once and then escalated; records already
// written for the turn are deleted on failure so subsequent reads see
// either the whole turn or none of it.
func (m *Manager) commitTurn(ctx context.Context, session *model.Session, turn *model.Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return goerr.Wrap(err, "failed to encode turn")
	}

	namespaces := []model.NamespacePath{
		model.ThreadScope(session.UserID, session.ThreadID),
		model.HistoryScope(session.UserID),
		model.RoleScope(session.UserID, turn.Role),
	}
	var written []model.NamespacePath
	for _, ns := range namespaces {
		if err := m.putWithRetry(ctx, ns, string(turn.ID), string(payload)); err != nil {
			m.rollbackTurn(ctx, written, turn.ID)
			return goerr.Wrap(err, "failed to persist turn",
				goerr.V("thread", session.ThreadID), goerr.V("turn", turn.ID))
		}
		written = append(written, ns)
	}

	session.Transcript = append(session.Transcript, *turn)
	session.TurnCount++
	session.LastActive = turn.CreatedAt
	return nil
}

// rollbackTurn removes the turn records written before a commit failed.
// Best-effort: a failed delete leaves an orphan record and a warning,
// never a second escalation.
func (m *Manager) rollbackTurn(ctx context.Context, written []model.NamespacePath, turnID model.TurnID) {
	for _, ns := range written {
		if err := m.store.Delete(ctx, ns, string(turnID)); err != nil {
			logging.From(ctx).Warn("failed to roll back turn record",
				"namespace", ns.String(), "turn", turnID, "error", err)
		}
	}
}

// putWithRetry retries a store write once before giving up.
func (m *Manager) putWithRetry(ctx context.Context, ns model.NamespacePath, key, value string) error {
	if err := m.store.Put(ctx, ns, key, value); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return err
	}
	return m.store.Put(ctx, ns, key, value)
}

// afterTurn runs the best-effort follow-ups: preference extraction,
// transcript archival, and cadence-based reflection. None of them can
// fail the already-committed turn.
func (m *Manager) afterTurn(ctx context.Context, session *model.Session, turn *model.Turn) {
	logger := logging.From(ctx)

	m.extractPreferences(ctx, session, turn)

	if m.archive != nil {
		if err := m.archiveTranscript(ctx, session); err != nil {
			logger.Warn("failed to archive transcript",
				"thread", session.ThreadID, "error", err)
		}
	}

	if session.TurnCount%m.cfg.cadence(turn.Role) == 0 {
		if _, err := m.reflector.Reflect(ctx, session.UserID, turn.Role, ""); err != nil {
			logger.Warn("reflection skipped",
				"role", turn.Role, "error", err)
		}
	}
}

func (m *Manager) archiveTranscript(ctx context.Context, session *model.Session) error {
	w, err := m.archive.Put(ctx, "transcripts/"+session.ThreadID+".json")
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(session); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to encode transcript")
	}
	return w.Close()
}

// Improve delivers explicit user feedback straight into the reflection
// engine for the primary role, returning the improvement summary.
func (m *Manager) Improve(ctx context.Context, userID, feedback string) (string, error) {
	return m.reflector.Reflect(ctx, userID, model.RolePrimary, feedback)
}

// now is a hook for tests.
var now = time.Now
