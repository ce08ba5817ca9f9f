package handoff

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/tool"
)

// Handoff lets the active role transfer the turn to another role. The
// directive lands in a slot that the router consumes exactly once; it is
// cleared on consumption and never re-triggers on later turns unless the
// model emits it again.
type Handoff struct {
	directive *model.Role
}

// New creates the handoff tool for one session.
func New() *Handoff {
	return &Handoff{}
}

func (x *Handoff) Flags() []cli.Flag { return nil }

func (x *Handoff) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return true, nil
}

func (x *Handoff) Prompt(ctx context.Context) string {
	return `When a request needs a specialist, call handoff with the target role: "status" for project-status investigation, "activity" for user-activity summaries, "archivist" for memory curation. Specialists call return_to_primary when their part is done.`
}

func (x *Handoff) Declarations() []tool.Declaration {
	return []tool.Declaration{
		{
			Name:        "handoff",
			Description: "Transfer this conversation turn to a specialized role",
			Schema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"target": {
						Type:        "string",
						Description: "Role to hand the turn to",
						Enum:        []any{string(model.RoleStatus), string(model.RoleActivity), string(model.RoleArchivist)},
					},
				},
				Required: []string{"target"},
			},
		},
		{
			Name:        "return_to_primary",
			Description: "Return the conversation to the primary assistant role",
			Schema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
	}
}

func (x *Handoff) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "handoff":
		target := model.Role(fmt.Sprint(args["target"]))
		if !target.Valid() || target == model.RolePrimary {
			return "", goerr.New("invalid handoff target", goerr.V("target", target))
		}
		x.directive = &target
		return fmt.Sprintf("Handing off to %s.", target), nil

	case "return_to_primary":
		target := model.RolePrimary
		x.directive = &target
		return "Returning to the primary assistant.", nil

	default:
		return "", goerr.New("unknown capability", goerr.V("name", name))
	}
}

// Consume returns the pending directive and clears it. The second return
// is false when no directive is pending.
func (x *Handoff) Consume() (model.Role, bool) {
	if x.directive == nil {
		return "", false
	}
	target := *x.directive
	x.directive = nil
	return target, true
}
