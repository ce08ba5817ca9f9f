package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/k-taniguchi/sidekick/pkg/repository"
	"github.com/k-taniguchi/sidekick/pkg/tool"
)

const maxSearchResults = 20

// Memory exposes the memory store to the model through namespace-bound
// handles. The private handle is fixed to the invoking role's scope and
// the shared handle to the user's shared scope at registration time;
// arguments can only choose between the two, so a role can never reach
// another role's private records through argument injection.
type Memory struct {
	private *repository.Handle
	shared  *repository.Handle
	search  *repository.Handle
}

// New creates memory capabilities bound to the given handles. The search
// handle is typically the whole user scope so recall covers preferences
// and history as well.
func New(private, shared, search *repository.Handle) *Memory {
	return &Memory{private: private, shared: shared, search: search}
}

func (x *Memory) Flags() []cli.Flag { return nil }

func (x *Memory) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return x.private != nil && x.shared != nil && x.search != nil, nil
}

func (x *Memory) Prompt(ctx context.Context) string {
	return `Use manage_memory to store facts worth remembering across conversations (decisions, deadlines, who owns what) and search_memory to recall them. Store in the "shared" scope when the fact is useful to other assistant roles.`
}

func (x *Memory) Declarations() []tool.Declaration {
	return []tool.Declaration{
		{
			Name:        "manage_memory",
			Description: "Store, fetch, list, or delete memory records in your own scope",
			Schema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"action": {
						Type:        "string",
						Description: "Operation to perform",
						Enum:        []any{"put", "get", "delete", "list"},
					},
					"scope": {
						Type:        "string",
						Description: "Target scope: your private scope or the user-wide shared scope (default private)",
						Enum:        []any{"private", "shared"},
					},
					"key": {
						Type:        "string",
						Description: "Record key (required for put, get, delete)",
					},
					"value": {
						Type:        "string",
						Description: "Record value (required for put)",
					},
				},
				Required: []string{"action"},
			},
		},
		{
			Name:        "search_memory",
			Description: "Search stored memory records by relevance to a query",
			Schema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {
						Type:        "string",
						Description: "Search text; matches record keys and values",
					},
				},
				Required: []string{"query"},
			},
		},
	}
}

func (x *Memory) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "manage_memory":
		return x.manage(ctx, args)
	case "search_memory":
		return x.searchRecords(ctx, args)
	default:
		return "", goerr.New("unknown capability", goerr.V("name", name))
	}
}

func (x *Memory) manage(ctx context.Context, args map[string]any) (string, error) {
	action, _ := args["action"].(string)
	key, _ := args["key"].(string)
	value, _ := args["value"].(string)

	handle := x.private
	if scope, _ := args["scope"].(string); scope == "shared" {
		handle = x.shared
	}

	switch action {
	case "put":
		if key == "" || value == "" {
			return "", goerr.New("put requires key and value")
		}
		if err := handle.Put(ctx, key, value); err != nil {
			return "", goerr.Wrap(err, "failed to store record")
		}
		return fmt.Sprintf("Stored %q.", key), nil

	case "get":
		if key == "" {
			return "", goerr.New("get requires key")
		}
		record, err := handle.Get(ctx, key)
		if err != nil {
			return "", goerr.Wrap(err, "failed to fetch record")
		}
		if record == nil {
			return fmt.Sprintf("No record for %q.", key), nil
		}
		return record.Value, nil

	case "delete":
		if key == "" {
			return "", goerr.New("delete requires key")
		}
		if err := handle.Delete(ctx, key); err != nil {
			return "", goerr.Wrap(err, "failed to delete record")
		}
		return fmt.Sprintf("Deleted %q.", key), nil

	case "list":
		keys, err := handle.ListKeys(ctx)
		if err != nil {
			return "", goerr.Wrap(err, "failed to list records")
		}
		var names []string
		for key := range keys {
			names = append(names, key)
		}
		if len(names) == 0 {
			return "No records stored.", nil
		}
		return "Stored keys:\n- " + strings.Join(names, "\n- "), nil

	default:
		return "", goerr.New("unknown action", goerr.V("action", action))
	}
}

func (x *Memory) searchRecords(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	records, err := x.search.Search(ctx, query)
	if err != nil {
		return "", goerr.Wrap(err, "failed to search records")
	}
	if len(records) == 0 {
		return "No matching records.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d record(s):\n", len(records))
	for i, record := range records {
		if i >= maxSearchResults {
			fmt.Fprintf(&b, "... %d more truncated\n", len(records)-i)
			break
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", record.Namespace.String(), record.Key, record.Value)
	}
	return b.String(), nil
}
