package mcptools

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewGraphMCPServer creates an MCP server with the inventory graph tools
// registered.
func NewGraphMCPServer(svc *GraphService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "netgraph",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_node",
		Description: "Fetch a node by handle. Returns its labels, meta-type, properties and the model it resolves to.",
	}, svc.GetNode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_node",
		Description: "Create a node with a meta-type (Physical, Logical, Relation, Location) and a type label. Handles must be unique.",
	}, svc.CreateNode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_node",
		Description: "Delete a node and all of its relationships.",
	}, svc.DeleteNode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_node_properties",
		Description: "Replace a node's properties, or merge into them when merge is true. The handle is always kept.",
	}, svc.SetNodeProperties)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_nodes",
		Description: "Find nodes whose property values contain a substring, case-insensitively. Optionally restrict to one property and one type label.",
	}, svc.SearchNodes)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_unique_node",
		Description: "Fetch the single node with an exact name and type label. Fails when more than one node matches.",
	}, svc.GetUniqueNode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_relationship",
		Description: "Create a relationship between two nodes. Fails unless the relationship type is legal for the nodes' meta-types.",
	}, svc.CreateRelationship)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_relationship",
		Description: "Fetch a relationship by id together with its start and end nodes.",
	}, svc.GetRelationship)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_relationship",
		Description: "Delete a single relationship by id.",
	}, svc.DeleteRelationship)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_legal",
		Description: "Report whether a relationship type is legal between two meta-types, and list the legal types.",
	}, svc.CheckLegal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "graph_stats",
		Description: "Return node and relationship counts.",
	}, svc.GraphStats)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP server over streamable HTTP on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string, logger *slog.Logger) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("mcp server shutdown", "error", err)
		}
	}()

	logger.Info("mcp server listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
