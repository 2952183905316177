package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	client := NewRiskClient(Config{APIURL: ts.URL, APIKey: "analyst-key"})
	return NewHandlers(client), ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var sampleAnalysis = map[string]any{
	"riskScore":  100,
	"status":     "Denied",
	"confidence": 95,
	"riskFactors": map[string]any{
		"LocationAnomaly": 0, "AmountDeviation": 100, "MerchantRisk": 80,
		"TimePattern": 40, "CardUsage": 0, "UserBehavior": 0, "VelocityCheck": 0,
	},
	"summary":         "Rule-based fallback assessment",
	"recommendations": []string{"Block transaction and contact cardholder"},
	"alertLevel":      "HIGH",
	"transactionId":   "txn_1717380000000_ab12cd34",
	"timestamp":       "2024-06-03T02:00:00Z",
	"processingTime":  3,
	"fallback":        true,
	"schemaVersion":   "2.0",
}

func sampleRecord(user, merchant string, score float64, status string) map[string]any {
	return map[string]any{
		"transaction": map[string]any{
			"amount": "6000", "currency": "USD", "merchant": merchant, "cardType": "credit",
			"location": "Las Vegas", "userId": user, "timestamp": "2024-06-03T02:00:00Z",
		},
		"analysis": map[string]any{
			"riskScore": score, "status": status, "alertLevel": "HIGH",
			"transactionId": "txn_" + merchant, "timestamp": "2024-06-03T02:00:00Z",
		},
	}
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_APIKeyHeader(t *testing.T) {
	var gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewRiskClient(Config{APIURL: ts.URL, APIKey: "analyst-key"})
	_, err := client.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "analyst-key", gotKey)
}

func TestClient_DoRequest_NoAPIKey(t *testing.T) {
	var hadKey bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadKey = r.Header["X-Api-Key"]
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	_, err := NewRiskClient(Config{APIURL: ts.URL}).GetStats(context.Background())
	require.NoError(t, err)
	assert.False(t, hadKey)
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   "profile_not_found",
			"message": "No risk profile exists for this user",
		})
	}))
	defer ts.Close()

	_, err := NewRiskClient(Config{APIURL: ts.URL}).GetProfile(context.Background(), "ghost_user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "No risk profile exists for this user")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	_, err := NewRiskClient(Config{APIURL: ts.URL}).GetStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	_, err := NewRiskClient(Config{APIURL: "http://127.0.0.1:1"}).GetStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewRiskClient(Config{APIURL: ts.URL}).GetStats(ctx)
	require.Error(t, err)
}

func TestClient_PathEscapesUserID(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	_, err := NewRiskClient(Config{APIURL: ts.URL}).GetHistory(context.Background(), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, "/api/history/a%2Fb%20c", gotPath)
}

func TestClient_ListRecent_Limit(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"transactions":[]}`))
	}))
	defer ts.Close()

	_, err := NewRiskClient(Config{APIURL: ts.URL}).ListRecent(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, "limit=25", gotQuery)
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleAnalyzeTransaction(t *testing.T) {
	var body map[string]any
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/analyze", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		writeJSON(w, http.StatusOK, sampleAnalysis)
	}))
	defer cleanup()

	result, err := h.HandleAnalyzeTransaction(context.Background(), makeRequest(map[string]any{
		"amount":     "6000",
		"currency":   "USD",
		"merchant":   "Casino Royale",
		"card_type":  "credit",
		"location":   "Las Vegas",
		"user_id":    "user_1",
		"ip_address": "81.2.69.142",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Verdict: Denied (risk 100/100, alert HIGH)")
	assert.Contains(t, text, "rule-based fallback")
	assert.Contains(t, text, "AmountDeviation")
	assert.Contains(t, text, "Block transaction and contact cardholder")

	assert.Equal(t, "credit", body["cardType"])
	assert.Equal(t, "user_1", body["userId"])
	assert.Equal(t, map[string]any{"ipAddress": "81.2.69.142"}, body["network"])
}

func TestHandleAnalyzeTransaction_MissingArgument(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called")
	}))
	defer cleanup()

	result, err := h.HandleAnalyzeTransaction(context.Background(), makeRequest(map[string]any{
		"amount":    "10",
		"currency":  "USD",
		"merchant":  "Bakery",
		"card_type": "debit",
		"location":  "Paris",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "user_id is required")
}

func TestHandleAnalyzeTransaction_ValidationError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation_error",
			"message": "amount: amount must be greater than zero",
		})
	}))
	defer cleanup()

	result, err := h.HandleAnalyzeTransaction(context.Background(), makeRequest(map[string]any{
		"amount": "0", "currency": "USD", "merchant": "Bakery",
		"card_type": "debit", "location": "Paris", "user_id": "user_1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "amount must be greater than zero")
}

func TestHandleGetUserProfile(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/profile/user_1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":                   "user_1",
			"riskLevel":                "HIGH",
			"totalTransactions":        10,
			"suspiciousTransactions":   4,
			"recentSuspiciousActivity": true,
			"lastUpdated":              "2024-06-03T02:00:00Z",
		})
	}))
	defer cleanup()

	result, err := h.HandleGetUserProfile(context.Background(), makeRequest(map[string]any{"user_id": "user_1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Risk Level: HIGH")
	assert.Contains(t, text, "Transactions: 10 (4 suspicious)")
	assert.Contains(t, text, "Recent suspicious activity: yes")
}

func TestHandleGetUserProfile_NotFound(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   "profile_not_found",
			"message": "No risk profile exists for this user",
		})
	}))
	defer cleanup()

	result, err := h.HandleGetUserProfile(context.Background(), makeRequest(map[string]any{"user_id": "ghost_user"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No risk profile exists")
}

func TestHandleGetUserProfile_MissingUser(t *testing.T) {
	h, cleanup := newTestSetup(http.NotFoundHandler())
	defer cleanup()

	result, err := h.HandleGetUserProfile(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetUserHistory(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history/user_1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"userId": "user_1",
			"transactions": []any{
				sampleRecord("user_1", "Casino", 100, "Denied"),
				sampleRecord("user_1", "Bakery", 20, "Approved"),
			},
			"count": 2,
		})
	}))
	defer cleanup()

	result, err := h.HandleGetUserHistory(context.Background(), makeRequest(map[string]any{"user_id": "user_1"}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 transaction(s)")
	assert.Contains(t, text, "1. 6000.00 USD at Casino (Las Vegas)")
	assert.Contains(t, text, "Denied | risk 100")
	assert.Contains(t, text, "txn_Bakery")
}

func TestHandleGetUserHistory_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"userId": "user_9", "transactions": []any{}, "count": 0})
	}))
	defer cleanup()

	result, err := h.HandleGetUserHistory(context.Background(), makeRequest(map[string]any{"user_id": "user_9"}))
	require.NoError(t, err)
	assert.Equal(t, "No transactions recorded for user_9.", resultText(t, result))
}

func TestHandleGetRiskStats(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stats", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"totalTransactions": 12,
			"statusCounts":      map[string]int{"Approved": 8, "Flagged": 3, "Denied": 1},
			"alertCounts":       map[string]int{"LOW": 8, "MEDIUM": 3, "HIGH": 1},
			"averageRiskScore":  31.5,
			"uniqueUsers":       4,
			"fallbackCount":     12,
			"fraudPatterns":     1,
			"userProfiles":      4,
		})
	}))
	defer cleanup()

	result, err := h.HandleGetRiskStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Transactions scored: 12")
	assert.Contains(t, text, "Verdicts: 8 approved, 3 flagged, 1 denied")
	assert.Contains(t, text, "Average risk score: 31.5")
	assert.Contains(t, text, "Known fraud patterns: 1")
}

func TestHandleListRecentTransactions(t *testing.T) {
	var gotLimit string
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		writeJSON(w, http.StatusOK, map[string]any{
			"transactions": []any{sampleRecord("user_2", "Casino", 90, "Denied")},
			"count":        1,
		})
	}))
	defer cleanup()

	result, err := h.HandleListRecentTransactions(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "10", gotLimit)
	assert.Contains(t, resultText(t, result), "User: user_2")

	_, err = h.HandleListRecentTransactions(context.Background(), makeRequest(map[string]any{"limit": float64(3)}))
	require.NoError(t, err)
	assert.Equal(t, "3", gotLimit)
}

func TestHandleListRecentTransactions_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"transactions": []any{}, "count": 0})
	}))
	defer cleanup()

	result, err := h.HandleListRecentTransactions(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No transactions have been scored yet.", resultText(t, result))
}

func TestHandleListRecentTransactions_MalformedResponse(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer cleanup()

	result, err := h.HandleListRecentTransactions(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"}, "test")
	require.NotNil(t, s)
}
