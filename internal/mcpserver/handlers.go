package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

const defaultRecentLimit = 10

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *RiskClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *RiskClient) *Handlers {
	return &Handlers{client: client}
}

// HandleAnalyzeTransaction scores one transaction.
func (h *Handlers) HandleAnalyzeTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tx := map[string]any{}
	for _, f := range []struct{ arg, field string }{
		{"amount", "amount"},
		{"currency", "currency"},
		{"merchant", "merchant"},
		{"card_type", "cardType"},
		{"location", "location"},
		{"user_id", "userId"},
	} {
		v := req.GetString(f.arg, "")
		if v == "" {
			return mcp.NewToolResultError(f.arg + " is required"), nil
		}
		tx[f.field] = v
	}
	if ip := req.GetString("ip_address", ""); ip != "" {
		tx["network"] = map[string]string{"ipAddress": ip}
	}

	raw, err := h.client.Analyze(ctx, tx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to analyze transaction: %v", err)), nil
	}

	text, err := formatAnalysis(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetUserProfile returns a user's risk profile.
func (h *Handlers) HandleGetUserProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.GetProfile(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get profile: %v", err)), nil
	}

	text, err := formatProfile(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse profile: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetUserHistory lists a user's scored transactions.
func (h *Handlers) HandleGetUserHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.GetHistory(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get history: %v", err)), nil
	}

	text, err := formatRecords(raw, fmt.Sprintf("No transactions recorded for %s.", userID))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse history: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetRiskStats returns engine-wide statistics.
func (h *Handlers) HandleGetRiskStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	text, err := formatStats(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse stats: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListRecentTransactions lists the newest scored transactions.
func (h *Handlers) HandleListRecentTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultRecentLimit)
	if limit < 1 {
		limit = defaultRecentLimit
	}

	raw, err := h.client.ListRecent(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	text, err := formatRecords(raw, "No transactions have been scored yet.")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transactions: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// -----------------------------------------------------------------------------
// Formatting
// -----------------------------------------------------------------------------

func formatAnalysis(raw json.RawMessage) (string, error) {
	var a risk.RiskAnalysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Verdict: %s (risk %.0f/100, alert %s)\n", a.Status, a.RiskScore, a.AlertLevel)
	fmt.Fprintf(&sb, "Transaction ID: %s\n", a.TransactionID)
	fmt.Fprintf(&sb, "Confidence: %.0f%%\n", a.Confidence)
	if a.Fallback {
		sb.WriteString("Source: rule-based fallback (oracle unavailable)\n")
	}
	if a.Summary != "" {
		fmt.Fprintf(&sb, "\nSummary: %s\n", a.Summary)
	}

	sb.WriteString("\nRisk factors:\n")
	for _, name := range risk.FactorNames {
		if v, ok := a.RiskFactors[name]; ok {
			fmt.Fprintf(&sb, "  %-16s %5.1f\n", name, v)
		}
	}

	if len(a.Recommendations) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&sb, "  - %s\n", r)
		}
	}
	return sb.String(), nil
}

func formatProfile(raw json.RawMessage) (string, error) {
	var p risk.UserRiskProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("User Risk Profile:\n")
	fmt.Fprintf(&sb, "  User: %s\n", p.UserID)
	fmt.Fprintf(&sb, "  Risk Level: %s\n", p.RiskLevel)
	fmt.Fprintf(&sb, "  Transactions: %d (%d suspicious)\n", p.TotalTransactions, p.SuspiciousTransactions)
	if p.RecentSuspiciousActivity {
		sb.WriteString("  Recent suspicious activity: yes\n")
	}
	if !p.LastUpdated.IsZero() {
		fmt.Fprintf(&sb, "  Last updated: %s\n", p.LastUpdated.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	return sb.String(), nil
}

func formatRecords(raw json.RawMessage, empty string) (string, error) {
	var resp struct {
		Transactions []*risk.LedgerRecord `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected transactions response format")
	}
	if len(resp.Transactions) == 0 {
		return empty, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d transaction(s):\n\n", len(resp.Transactions))
	for i, rec := range resp.Transactions {
		if rec.Transaction == nil || rec.Analysis == nil {
			continue
		}
		tx, a := rec.Transaction, rec.Analysis
		fmt.Fprintf(&sb, "%d. %s %s at %s (%s)\n", i+1, tx.Amount.StringFixed(2), tx.Currency, tx.Merchant, tx.Location)
		fmt.Fprintf(&sb, "   User: %s | %s | risk %.0f | alert %s\n", tx.UserID, a.Status, a.RiskScore, a.AlertLevel)
		fmt.Fprintf(&sb, "   ID: %s | %s\n", a.TransactionID, a.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func formatStats(raw json.RawMessage) (string, error) {
	var s risk.Stats
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Risk Engine Statistics:\n")
	fmt.Fprintf(&sb, "  Transactions scored: %d\n", s.TotalTransactions)
	fmt.Fprintf(&sb, "  Unique users: %d\n", s.UniqueUsers)
	fmt.Fprintf(&sb, "  Average risk score: %.1f\n", s.AverageRiskScore)
	fmt.Fprintf(&sb, "  Verdicts: %d approved, %d flagged, %d denied\n",
		s.StatusCounts[risk.StatusApproved], s.StatusCounts[risk.StatusFlagged], s.StatusCounts[risk.StatusDenied])
	fmt.Fprintf(&sb, "  Fallback verdicts: %d\n", s.FallbackCount)
	fmt.Fprintf(&sb, "  Known fraud patterns: %d\n", s.FraudPatterns)
	fmt.Fprintf(&sb, "  Profiled users: %d\n", s.UserProfiles)
	return sb.String(), nil
}
