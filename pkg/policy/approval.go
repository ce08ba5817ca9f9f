package policy

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/k-taniguchi/sidekick/pkg/model"
)

//go:embed policy/default.rego
var defaultPolicyRaw string

// Input describes one capability call awaiting approval.
type Input struct {
	Role       model.Role     `json:"role"`
	Capability string         `json:"capability"`
	Args       map[string]any `json:"args"`
	ReadOnly   bool           `json:"read_only"`
}

// Approver decides whether a capability call may execute. It is the
// pluggable predicate behind the session loop's Approval state; denial
// is surfaced to the model as a structured result, not a fault.
type Approver interface {
	Approve(ctx context.Context, input Input) (bool, error)
}

// Rego is an OPA-backed Approver evaluating data.approval.allow.
type Rego struct {
	query *rego.PreparedEvalQuery
}

// New prepares the approval query. With an empty policyDir the embedded
// default policy (approve everything) is used; otherwise every *.rego
// file in the directory is loaded.
func New(ctx context.Context, policyDir string) (*Rego, error) {
	modules := []func(*rego.Rego){
		rego.Module("default.rego", defaultPolicyRaw),
	}

	if policyDir != "" {
		files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to glob policy files")
		}
		if len(files) > 0 {
			// Operator policies replace the embedded default entirely.
			modules = modules[:0]
		}
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
			}
			modules = append(modules, rego.Module(file, string(data)))
		}
	}

	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query("data.approval.allow"))
	options = append(options, modules...)

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare approval query")
	}

	return &Rego{query: &prepared}, nil
}

// Approve evaluates the policy. A missing or non-boolean result denies.
func (p *Rego) Approve(ctx context.Context, input Input) (bool, error) {
	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate approval policy")
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}
