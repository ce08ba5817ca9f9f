package reflect

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/k-taniguchi/sidekick/pkg/adapter"
	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/prompts"
	"github.com/k-taniguchi/sidekick/pkg/repository"
	"github.com/k-taniguchi/sidekick/pkg/utils/logging"
)

//go:embed prompt/reflect.md
var reflectPromptRaw string

var reflectPromptTmpl = template.Must(template.New("reflect").Parse(reflectPromptRaw))

// ErrDegenerate means the model produced empty or invariant-breaking
// instructions. The caller keeps the prior instructions; nothing was
// written.
var ErrDegenerate = goerr.New("degenerate reflection output")

// maxRecords caps how much recent activity feeds one reflection.
const maxRecords = 20

// Reflector rewrites a role's operating instructions from its recent
// activity and optional explicit feedback. Only the reflector writes to
// the instruction namespace.
type Reflector struct {
	store  repository.MemoryStore
	gemini adapter.Gemini
}

// New creates a Reflector.
func New(store repository.MemoryStore, gemini adapter.Gemini) *Reflector {
	return &Reflector{store: store, gemini: gemini}
}

// Reflect reads the role's current instructions and recent activity,
// generates a rewritten instruction set, validates it, and stores it.
// On degenerate output the prior instructions stay untouched and
// ErrDegenerate is returned; callers treat this as a soft failure.
// The returned summary describes what changed.
func (r *Reflector) Reflect(ctx context.Context, userID string, role model.Role, feedback string) (string, error) {
	current, err := r.currentInstructions(ctx, userID, role)
	if err != nil {
		return "", err
	}

	records, err := r.recentActivity(ctx, userID, role)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := reflectPromptTmpl.Execute(&buf, map[string]any{
		"Role":         string(role),
		"PrimaryTask":  role.PrimaryTask(),
		"Instructions": current,
		"Records":      records,
		"Feedback":     feedback,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to build reflection prompt")
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"instructions": {
					Type:        genai.TypeString,
					Description: "The complete rewritten instruction text",
				},
				"summary": {
					Type:        genai.TypeString,
					Description: "One paragraph describing what changed and why",
				},
			},
			Required: []string{"instructions", "summary"},
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buf.String(), genai.RoleUser),
	}

	resp, err := r.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate reflection")
	}

	rawJSON := adapter.ResponseText(resp)
	var candidate struct {
		Instructions string `json:"instructions"`
		Summary      string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(rawJSON), &candidate); err != nil {
		return "", goerr.Wrap(ErrDegenerate, "unparseable reflection output",
			goerr.V("role", role))
	}

	if err := checkInvariant(role, candidate.Instructions); err != nil {
		return "", err
	}

	ns := model.InstructionScope(userID)
	if err := r.store.Put(ctx, ns, string(role), candidate.Instructions); err != nil {
		return "", goerr.Wrap(err, "failed to store rewritten instructions",
			goerr.V("role", role))
	}

	logging.From(ctx).Info("rewrote role instructions",
		"role", role, "user", userID, "summary", candidate.Summary)

	return candidate.Summary, nil
}

// Instructions returns the stored instructions for a role, falling back
// to the embedded defaults when none have been written yet.
func Instructions(ctx context.Context, store repository.MemoryStore, userID string, role model.Role) (string, error) {
	record, err := store.Get(ctx, model.InstructionScope(userID), string(role))
	if err != nil {
		return "", goerr.Wrap(err, "failed to read instructions", goerr.V("role", role))
	}
	if record == nil || strings.TrimSpace(record.Value) == "" {
		return prompts.Default(role), nil
	}
	return record.Value, nil
}

func (r *Reflector) currentInstructions(ctx context.Context, userID string, role model.Role) (string, error) {
	return Instructions(ctx, r.store, userID, role)
}

// recentActivity collects the newest records from the role's private
// scope and the user's conversation history.
func (r *Reflector) recentActivity(ctx context.Context, userID string, role model.Role) ([]*model.MemoryRecord, error) {
	var records []*model.MemoryRecord

	for _, ns := range []model.NamespacePath{
		model.RoleScope(userID, role),
		model.HistoryScope(userID),
	} {
		found, err := r.store.Search(ctx, ns, "")
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read recent activity",
				goerr.V("namespace", ns.String()))
		}
		records = append(records, found...)
	}

	if len(records) > maxRecords {
		records = records[:maxRecords]
	}
	return records, nil
}

// checkInvariant verifies the structural invariant on rewritten
// instructions: non-empty and still referencing the role's primary task.
func checkInvariant(role model.Role, instructions string) error {
	trimmed := strings.TrimSpace(instructions)
	if trimmed == "" {
		return goerr.Wrap(ErrDegenerate, "empty instructions", goerr.V("role", role))
	}

	lower := strings.ToLower(trimmed)
	for _, word := range strings.Fields(strings.ToLower(role.PrimaryTask())) {
		if len(word) < 5 {
			continue
		}
		if strings.Contains(lower, word) {
			return nil
		}
	}
	return goerr.Wrap(ErrDegenerate, "instructions no longer reference the primary task",
		goerr.V("role", role))
}
