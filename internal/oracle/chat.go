package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

const systemPrompt = `You are a payment fraud analyst. You receive one card transaction together with
the cardholder's history summary, risk profile, heuristic pre-analysis signals and the keys of
known high-risk patterns. Assess the fraud risk of the transaction.

Reply with a single JSON object and nothing else, using exactly these fields:
{
  "riskScore": number 0-100,
  "status": "Approved" | "Flagged" | "Denied",
  "confidence": number 0-100,
  "summary": string,
  "riskFactors": {
    "LocationAnomaly": number 0-100,
    "AmountDeviation": number 0-100,
    "MerchantRisk": number 0-100,
    "TimePattern": number 0-100,
    "CardUsage": number 0-100,
    "UserBehavior": number 0-100,
    "VelocityCheck": number 0-100
  },
  "recommendations": [string],
  "alertLevel": "LOW" | "MEDIUM" | "HIGH" | "CRITICAL"
}`

// ChatOracle asks an OpenAI-compatible chat completion endpoint for a verdict.
type ChatOracle struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewChatOracle creates an oracle for the chat completion API rooted at
// baseURL, for example "https://api.openai.com/v1".
func NewChatOracle(baseURL, apiKey, model string, timeout time.Duration) *ChatOracle {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ChatOracle{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *ChatOracle) Enrich(ctx context.Context, req *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
	prompt, err := UserPrompt(req)
	if err != nil {
		return nil, err
	}

	body, err := postJSON(ctx, o.httpClient, o.baseURL+"/chat/completions", o.apiKey, chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.1,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode completion: %v", risk.ErrInvalidReply, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion has no choices", risk.ErrInvalidReply)
	}
	return ParseReply(resp.Choices[0].Message.Content)
}

// UserPrompt renders the enrichment request as the user turn.
func UserPrompt(req *risk.EnrichmentRequest) (string, error) {
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal enrichment request: %w", err)
	}
	return "Assess this transaction:\n" + string(data), nil
}

// ParseReply extracts the JSON object from a model message. Markdown code
// fences and surrounding prose are ignored.
func ParseReply(content string) (*risk.EnrichmentReply, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", risk.ErrInvalidReply)
	}
	var reply risk.EnrichmentReply
	if err := json.Unmarshal([]byte(content[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", risk.ErrInvalidReply, err)
	}
	return &reply, nil
}
