package main

import (
	"context"
	"log"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ticketStatusParams struct {
	Ticket string `json:"ticket" jsonschema:"Ticket ID to look up"`
}

// ticketStatus reports a canned status for the requested ticket. The
// server only exists to exercise the stdio transport in tests.
func ticketStatus(ctx context.Context, req *mcp.CallToolRequest, params *ticketStatusParams) (*mcp.CallToolResult, any, error) {
	ticket := params.Ticket
	if ticket == "" {
		ticket = "PROJ-0"
	}

	response := ticket + ": Blocked (waiting on vendor API keys)"

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: response},
		},
	}, nil, nil
}

func main() {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ticket-tracker",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticket_status",
		Description: "Report the current status of a project ticket",
	}, ticketStatus)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("Server failed: %v", err)
		os.Exit(1)
	}
}
