package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the risk engine MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAnalyzeTransaction = mcp.NewTool("analyze_transaction",
	mcp.WithDescription(
		"Score a payment transaction for fraud risk. "+
			"Returns a risk score from 0 to 100, a verdict (Approved, Flagged or Denied), "+
			"an alert level, per-factor scores and recommendations. "+
			"The transaction is recorded and updates the user's risk profile."),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Transaction amount as a decimal string (e.g. '2500.00')")),
	mcp.WithString("currency",
		mcp.Required(),
		mcp.Description("ISO 4217 currency code"),
		mcp.Enum("USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CHF", "CNY", "INR")),
	mcp.WithString("merchant",
		mcp.Required(),
		mcp.Description("Merchant name (e.g. 'Best Buy')")),
	mcp.WithString("card_type",
		mcp.Required(),
		mcp.Description("Payment card type"),
		mcp.Enum("credit", "debit", "prepaid")),
	mcp.WithString("location",
		mcp.Required(),
		mcp.Description("Where the transaction happened (e.g. 'New York')")),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The paying user's identifier")),
	mcp.WithString("ip_address",
		mcp.Description("Optional originating IP address, used for geo context")),
)

var ToolGetUserProfile = mcp.NewTool("get_user_profile",
	mcp.WithDescription(
		"Get a user's risk profile: risk level (LOW/MEDIUM/HIGH), "+
			"total and suspicious transaction counts, and whether there is recent suspicious activity."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user's identifier")),
)

var ToolGetUserHistory = mcp.NewTool("get_user_history",
	mcp.WithDescription(
		"List a user's previously scored transactions with their verdicts, oldest first."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user's identifier")),
)

var ToolGetRiskStats = mcp.NewTool("get_risk_stats",
	mcp.WithDescription(
		"Get engine-wide statistics: transactions scored, verdict and alert distribution, "+
			"average risk score, fallback count, known fraud patterns and profiled users."),
)

var ToolListRecentTransactions = mcp.NewTool("list_recent_transactions",
	mcp.WithDescription(
		"List the most recently scored transactions across all users, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of transactions to return (default 10)")),
)
