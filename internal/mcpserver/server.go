package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all risk engine tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("fraud-risk-engine", version)
	client := NewRiskClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolAnalyzeTransaction, h.HandleAnalyzeTransaction)
	s.AddTool(ToolGetUserProfile, h.HandleGetUserProfile)
	s.AddTool(ToolGetUserHistory, h.HandleGetUserHistory)
	s.AddTool(ToolGetRiskStats, h.HandleGetRiskStats)
	s.AddTool(ToolListRecentTransactions, h.HandleListRecentTransactions)

	return s
}
