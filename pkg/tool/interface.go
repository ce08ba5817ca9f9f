package tool

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/urfave/cli/v3"
)

// Declaration describes one capability a tool exposes to the model.
// Arguments are validated against Schema before Execute runs.
type Declaration struct {
	Name        string
	Description string

	// Schema is the JSON schema of the argument object. A nil schema
	// means the capability takes no arguments.
	Schema *jsonschema.Schema

	// ReadOnly marks pure query capabilities that are idempotent and
	// safe to retry. Mutating capabilities leave this false.
	ReadOnly bool
}

// Tool represents a capability provider callable by the LLM. One tool
// may expose multiple named capabilities.
type Tool interface {
	// Declarations returns the capabilities this tool exposes
	Declarations() []Declaration

	// Execute runs the named capability with validated arguments and
	// returns a textual result for the model
	Execute(ctx context.Context, name string, args map[string]any) (string, error)

	// Prompt returns additional information to be added to the system prompt
	// Returns empty string if no additional prompt is needed
	Prompt(ctx context.Context) string

	// Flags returns CLI flags for this tool
	// Returns nil if no flags are needed
	Flags() []cli.Flag

	// Init prepares the tool and reports whether it is enabled
	Init(ctx context.Context, client *Client) (bool, error)
}
