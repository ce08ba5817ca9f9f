package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"

	"github.com/k-taniguchi/sidekick/pkg/tool"
)

type fakeTool struct {
	decls   []tool.Declaration
	enabled bool
	execute func(ctx context.Context, name string, args map[string]any) (string, error)
}

func (x *fakeTool) Declarations() []tool.Declaration { return x.decls }
func (x *fakeTool) Prompt(ctx context.Context) string {
	return "Use lookup to find records."
}
func (x *fakeTool) Flags() []cli.Flag { return nil }
func (x *fakeTool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return x.enabled, nil
}
func (x *fakeTool) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	return x.execute(ctx, name, args)
}

func lookupTool(execute func(ctx context.Context, name string, args map[string]any) (string, error)) *fakeTool {
	return &fakeTool{
		enabled: true,
		execute: execute,
		decls: []tool.Declaration{
			{
				Name:        "lookup",
				Description: "Look up a record by name",
				ReadOnly:    true,
				Schema: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"name": {Type: "string"},
					},
					Required: []string{"name"},
				},
			},
		},
	}
}

func TestRegistryExecute(t *testing.T) {
	ctx := context.Background()
	registry := tool.New(lookupTool(func(ctx context.Context, name string, args map[string]any) (string, error) {
		return "found " + args["name"].(string), nil
	}))
	gt.NoError(t, registry.Init(ctx, &tool.Client{}))

	resp, err := registry.Execute(ctx, genai.FunctionCall{
		Name: "lookup",
		Args: map[string]any{"name": "alpha"},
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["result"], "found alpha")
}

func TestRegistryIgnoresNilTool(t *testing.T) {
	ctx := context.Background()

	// An optional provider that did not materialize arrives as a nil
	// Tool; the registry must not touch it.
	registry := tool.New(nil, lookupTool(func(ctx context.Context, name string, args map[string]any) (string, error) {
		return "found " + args["name"].(string), nil
	}))
	gt.NoError(t, registry.Init(ctx, &tool.Client{}))

	gt.A(t, registry.EnabledCapabilities()).Length(1)
	resp, err := registry.Execute(ctx, genai.FunctionCall{
		Name: "lookup",
		Args: map[string]any{"name": "alpha"},
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["result"], "found alpha")
}

func TestRegistryUnknownCapability(t *testing.T) {
	ctx := context.Background()
	registry := tool.New()
	gt.NoError(t, registry.Init(ctx, &tool.Client{}))

	_, err := registry.Execute(ctx, genai.FunctionCall{Name: "nope"})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, tool.ErrToolNotFound))
}

func TestRegistryValidationFailFast(t *testing.T) {
	ctx := context.Background()

	executed := false
	registry := tool.New(lookupTool(func(ctx context.Context, name string, args map[string]any) (string, error) {
		executed = true
		return "", nil
	}))
	gt.NoError(t, registry.Init(ctx, &tool.Client{}))

	// Missing required argument: rejected before execution.
	_, err := registry.Execute(ctx, genai.FunctionCall{
		Name: "lookup",
		Args: map[string]any{},
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, tool.ErrInvalidArgs))
	gt.False(t, executed)

	// Wrong type: also rejected before execution.
	_, err = registry.Execute(ctx, genai.FunctionCall{
		Name: "lookup",
		Args: map[string]any{"name": 42},
	})
	gt.Error(t, err)
	gt.False(t, executed)
}

func TestRegistryFaultConversion(t *testing.T) {
	ctx := context.Background()
	registry := tool.New(lookupTool(func(ctx context.Context, name string, args map[string]any) (string, error) {
		return "", goerr.New("backend unreachable")
	}))
	gt.NoError(t, registry.Init(ctx, &tool.Client{}))

	// An execution fault becomes an observable error response, not a
	// Go error.
	resp, err := registry.Execute(ctx, genai.FunctionCall{
		Name: "lookup",
		Args: map[string]any{"name": "alpha"},
	})
	gt.NoError(t, err)
	gt.S(t, resp.Response["error"].(string)).Contains("backend unreachable")
}

func TestRegistryDisabledTool(t *testing.T) {
	ctx := context.Background()
	disabled := lookupTool(nil)
	disabled.enabled = false

	registry := tool.New(disabled)
	gt.NoError(t, registry.Init(ctx, &tool.Client{}))
	gt.A(t, registry.EnabledCapabilities()).Length(0)
	gt.V(t, registry.Specs()).Nil()
}

func TestRegistryDuplicateName(t *testing.T) {
	ctx := context.Background()
	registry := tool.New(lookupTool(nil), lookupTool(nil))
	gt.Error(t, registry.Init(ctx, &tool.Client{}))
}

func TestRegistrySpecs(t *testing.T) {
	ctx := context.Background()
	registry := tool.New(lookupTool(nil))
	gt.NoError(t, registry.Init(ctx, &tool.Client{}))

	specs := registry.Specs()
	gt.A(t, specs).Length(1)
	gt.A(t, specs[0].FunctionDeclarations).Length(1)
	gt.Equal(t, specs[0].FunctionDeclarations[0].Name, "lookup")
	gt.Equal(t, specs[0].FunctionDeclarations[0].Parameters.Type, genai.TypeObject)

	gt.True(t, registry.IsReadOnly("lookup"))
	gt.False(t, registry.IsReadOnly("unknown"))

	gt.S(t, registry.Prompts(ctx)).Contains("lookup")
}
