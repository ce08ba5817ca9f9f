package reflect_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"google.golang.org/genai"

	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/repository"
	"github.com/k-taniguchi/sidekick/pkg/usecase/reflect"
)

type mockGemini struct {
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.generateFunc(ctx, contents, config)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
	}
}

func TestReflectRewritesInstructions(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemStore()

	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse(`{"instructions": "Investigate project status from channel messages. Always read the messages before concluding.", "summary": "Added a rule to read messages first."}`), nil
		},
	}

	r := reflect.New(store, gemini)
	summary, err := r.Reflect(ctx, "alice", model.RoleStatus, "")
	gt.NoError(t, err)
	gt.S(t, summary).Contains("read messages first")

	// The rewritten text replaces the stored instructions.
	instructions, err := reflect.Instructions(ctx, store, "alice", model.RoleStatus)
	gt.NoError(t, err)
	gt.S(t, instructions).Contains("Always read the messages")
}

func TestReflectDegenerateOutputKeptOut(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemStore()

	// Seed an existing instruction set.
	ns := model.InstructionScope("alice")
	prior := "Investigate project status from channel messages carefully."
	gt.NoError(t, store.Put(ctx, ns, string(model.RoleStatus), prior))

	for _, output := range []string{
		`{"instructions": "", "summary": "wiped everything"}`,
		`{"instructions": "Talk about the weather.", "summary": "drifted"}`,
		`not json at all`,
	} {
		gemini := &mockGemini{
			generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return textResponse(output), nil
			},
		}

		_, err := reflect.New(store, gemini).Reflect(ctx, "alice", model.RoleStatus, "")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reflect.ErrDegenerate))

		// The prior instructions survive untouched.
		record, err := store.Get(ctx, ns, string(model.RoleStatus))
		gt.NoError(t, err)
		gt.V(t, record).NotNil()
		gt.Equal(t, record.Value, prior)
	}
}

func TestReflectFeedbackReachesPrompt(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemStore()

	var prompt string
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			prompt = contents[0].Parts[0].Text
			return textResponse(`{"instructions": "Answer project-status questions in bullet points.", "summary": "ok"}`), nil
		},
	}

	_, err := reflect.New(store, gemini).Reflect(ctx, "alice", model.RolePrimary, "use bullet points")
	gt.NoError(t, err)
	gt.S(t, prompt).Contains("use bullet points")
}

func TestInstructionsFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemStore()

	instructions, err := reflect.Instructions(ctx, store, "nobody", model.RoleArchivist)
	gt.NoError(t, err)
	gt.NotEqual(t, instructions, "")
}
