package tool

import (
	"context"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

var (
	// ErrToolNotFound means the model requested an unknown capability.
	ErrToolNotFound = goerr.New("tool not found")

	// ErrInvalidArgs means the arguments failed schema validation; the
	// capability was not executed.
	ErrInvalidArgs = goerr.New("invalid tool arguments")
)

// entry binds one declared capability to its owning tool and resolved
// argument schema.
type entry struct {
	decl     Declaration
	tool     Tool
	resolved *jsonschema.Resolved
	funcDecl *genai.FunctionDeclaration
}

// Registry manages available capabilities for the LLM. Arguments are
// validated against the declared schema before execution; execution
// faults are converted to structured error responses rather than
// propagated.
type Registry struct {
	allTools []Tool
	entries  map[string]*entry
}

// New creates a new tool registry with the given tools. Nil tools are
// dropped so optional providers can be passed without a presence check.
func New(tools ...Tool) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
	}
	for _, t := range tools {
		if t != nil {
			r.allTools = append(r.allTools, t)
		}
	}
	return r
}

// Init initializes all tools and registers capabilities of the enabled
// ones. Disabled tools are skipped silently.
func (r *Registry) Init(ctx context.Context, client *Client) error {
	for _, t := range r.allTools {
		enabled, err := t.Init(ctx, client)
		if err != nil {
			return goerr.Wrap(err, "failed to initialize tool")
		}
		if !enabled {
			continue
		}

		for _, decl := range t.Declarations() {
			if _, exists := r.entries[decl.Name]; exists {
				return goerr.New("duplicate capability name", goerr.V("name", decl.Name))
			}

			e := &entry{decl: decl, tool: t}

			if decl.Schema != nil {
				resolved, err := decl.Schema.Resolve(nil)
				if err != nil {
					return goerr.Wrap(err, "failed to resolve capability schema",
						goerr.V("name", decl.Name))
				}
				e.resolved = resolved
			}

			params, err := convertSchemaToGenai(decl.Schema)
			if err != nil {
				return goerr.Wrap(err, "failed to convert capability schema",
					goerr.V("name", decl.Name))
			}
			e.funcDecl = &genai.FunctionDeclaration{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  params,
			}

			r.entries[decl.Name] = e
		}
	}

	return nil
}

// Specs returns tool specifications for Gemini function calling
func (r *Registry) Specs() []*genai.Tool {
	if len(r.entries) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(r.entries))
	for _, name := range r.EnabledCapabilities() {
		decls = append(decls, r.entries[name].funcDecl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// EnabledCapabilities returns the sorted names of registered capabilities.
func (r *Registry) EnabledCapabilities() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsReadOnly reports whether the named capability is a pure query.
// Unknown capabilities report false.
func (r *Registry) IsReadOnly(name string) bool {
	e, ok := r.entries[name]
	return ok && e.decl.ReadOnly
}

// Prompts returns all tool prompts concatenated
func (r *Registry) Prompts(ctx context.Context) string {
	var prompts []string
	for _, t := range r.allTools {
		if prompt := t.Prompt(ctx); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Flags returns all tool flags combined
func (r *Registry) Flags() []cli.Flag {
	var flags []cli.Flag
	for _, t := range r.allTools {
		if toolFlags := t.Flags(); toolFlags != nil {
			flags = append(flags, toolFlags...)
		}
	}
	return flags
}

// Execute validates the function call and runs the capability. The
// returned FunctionResponse always has either a "result" or an "error"
// entry; execution faults never propagate as Go errors so the model can
// observe and recover from them. Only an unknown capability name or a
// validation failure returns an error to the caller.
func (r *Registry) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	e, ok := r.entries[fc.Name]
	if !ok {
		return nil, goerr.Wrap(ErrToolNotFound, "unknown capability", goerr.V("name", fc.Name))
	}

	if e.resolved != nil {
		if err := e.resolved.Validate(fc.Args); err != nil {
			return nil, goerr.Wrap(ErrInvalidArgs, err.Error(), goerr.V("name", fc.Name))
		}
	}

	result, err := e.tool.Execute(ctx, fc.Name, fc.Args)
	if err != nil {
		return &genai.FunctionResponse{
			Name:     fc.Name,
			Response: map[string]any{"error": err.Error()},
		}, nil
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": result},
	}, nil
}
