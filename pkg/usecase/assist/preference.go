package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/k-taniguchi/sidekick/pkg/adapter"
	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/utils/logging"
)

const extractorPrompt = `Identify durable user preferences stated or strongly implied in this exchange.
A preference is a lasting fact about how the user wants to be served, such as a preferred report format, a channel to watch, or a working-hours constraint.
Do not record one-off requests, questions, or facts about projects.
Return an empty list when no durable preference is present.

User message:
%s

Assistant reply:
%s`

// Extractor infers durable preference facts from a single exchange
// using structured model output.
type Extractor struct {
	gemini adapter.Gemini
}

// NewExtractor creates the model-backed preference extractor.
func NewExtractor(gemini adapter.Gemini) *Extractor {
	return &Extractor{gemini: gemini}
}

type extractedPreference struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type extractionResult struct {
	Preferences []extractedPreference `json:"preferences"`
}

// Extract returns preference facts as name/value pairs. An empty map
// means no durable preference was found.
func (x *Extractor) Extract(ctx context.Context, userText, replyText string) (map[string]string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf(extractorPrompt, userText, replyText), genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"preferences": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"name":  {Type: genai.TypeString, Description: "Short stable identifier, e.g. report_format"},
							"value": {Type: genai.TypeString, Description: "The preferred value"},
						},
						Required: []string{"name", "value"},
					},
				},
			},
			Required: []string{"preferences"},
		},
	}

	resp, err := x.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "preference extraction failed")
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(adapter.ResponseText(resp)), &result); err != nil {
		return nil, goerr.Wrap(err, "failed to parse preference extraction output")
	}

	prefs := make(map[string]string, len(result.Preferences))
	for _, p := range result.Preferences {
		name := strings.TrimSpace(p.Name)
		value := strings.TrimSpace(p.Value)
		if name == "" || value == "" {
			continue
		}
		prefs[name] = value
	}
	return prefs, nil
}

// extractPreferences persists inferred preferences to the user's
// preference scope. Failures are logged and never affect the turn.
func (m *Manager) extractPreferences(ctx context.Context, session *model.Session, turn *model.Turn) {
	if m.extractor == nil {
		return
	}
	logger := logging.From(ctx)

	prefs, err := m.extractor.Extract(ctx, turn.Input, turn.Output)
	if err != nil {
		logger.Warn("preference extraction skipped",
			"thread", session.ThreadID, "error", err)
		return
	}

	ns := model.PreferenceScope(session.UserID)
	for name, value := range prefs {
		if err := m.store.Put(ctx, ns, name, value); err != nil {
			logger.Warn("failed to store preference",
				"name", name, "error", err)
		}
	}
}
