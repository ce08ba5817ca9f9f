package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	"github.com/k-taniguchi/sidekick/pkg/tool"
)

// Provider adapts tools served by connected MCP servers into registry
// capabilities. An external channel/message query provider can ship its
// operations this way without the core knowing the platform protocol.
type Provider struct {
	client *Client
	byName map[string]*mcpTool
	decls  []tool.Declaration
}

type mcpTool struct {
	serverName string
	tool       *mcp.Tool
}

// NewProvider creates a new MCP tool provider
func NewProvider(client *Client) *Provider {
	return &Provider{
		client: client,
		byName: make(map[string]*mcpTool),
	}
}

// Flags returns CLI flags for MCP provider
func (p *Provider) Flags() []cli.Flag {
	return nil // MCP config is loaded separately
}

// Prompt returns additional information to be added to the system prompt
func (p *Provider) Prompt(ctx context.Context) string {
	return ""
}

// Init registers each connected server's tools as capabilities
func (p *Provider) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if p.client == nil {
		return false, nil
	}

	for serverName, tools := range p.client.Tools() {
		for _, t := range tools {
			schema, err := convertInputSchema(t)
			if err != nil {
				return false, goerr.Wrap(err, "failed to convert tool schema",
					goerr.V("server", serverName), goerr.V("tool", t.Name))
			}

			readOnly := t.Annotations != nil && t.Annotations.ReadOnlyHint

			p.byName[t.Name] = &mcpTool{serverName: serverName, tool: t}
			p.decls = append(p.decls, tool.Declaration{
				Name:        t.Name,
				Description: t.Description,
				Schema:      schema,
				ReadOnly:    readOnly,
			})
		}
	}

	return len(p.decls) > 0, nil
}

// Declarations returns the capabilities this provider exposes
func (p *Provider) Declarations() []tool.Declaration {
	return p.decls
}

// Execute forwards the call to the owning MCP server and flattens the
// text content of the result.
func (p *Provider) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := p.byName[name]
	if !ok {
		return "", goerr.New("unknown MCP tool", goerr.V("name", name))
	}

	result, err := p.client.CallTool(ctx, t.serverName, name, args)
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", goerr.New("MCP tool returned error", goerr.V("tool", name))
	}

	var texts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			texts = append(texts, text.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// convertInputSchema converts the MCP input schema (an arbitrary JSON
// value) into a jsonschema.Schema via a marshal round trip.
func convertInputSchema(t *mcp.Tool) (*jsonschema.Schema, error) {
	if t.InputSchema == nil {
		return nil, nil
	}

	schemaJSON, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal input schema")
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal input schema")
	}

	return &schema, nil
}
