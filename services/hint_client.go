package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"code-race-system/utils"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

// GeminiClient generates mentor-style hints through the Gemini API.
type GeminiClient struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func NewGeminiClient() (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}
	return &GeminiClient{
		APIKey:     apiKey,
		Endpoint:   geminiEndpoint,
		HTTPClient: utils.HTTPClient,
	}, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Config   geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// buildPrompt frames the request as a mentor conversation: guidance without
// the complete solution.
func buildPrompt(req HintRequest) string {
	var conversation strings.Builder
	for _, msg := range req.History {
		speaker := "Mentor"
		if msg.Role == "user" {
			speaker = "Student"
		}
		fmt.Fprintf(&conversation, "%s: %s\n\n", speaker, msg.Content)
	}

	return fmt.Sprintf(`You are a helpful coding mentor helping a student solve this problem:

Problem: %s
%s

Their current code:
`+"```python\n%s\n```"+`

Previous conversation:
%s
Student's question: %s

Provide helpful guidance without giving away the complete solution. Be concise (2-4 sentences), encouraging, and focus on teaching concepts. If they're stuck, suggest what to think about rather than what to code.`,
		req.ProblemTitle, req.ProblemDescription, req.UserCode, conversation.String(), req.Question)
}

func (g *GeminiClient) Generate(ctx context.Context, hintReq HintRequest) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildPrompt(hintReq)}},
		}},
		Config: geminiGenConfig{Temperature: 0.7, MaxOutputTokens: 300},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode hint request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", g.Endpoint, g.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call hint service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("hint service returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode hint response: %w", err)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "I can help you think through this problem. What specifically are you struggling with?", nil
	}
	return strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text), nil
}
