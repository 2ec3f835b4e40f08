package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClassifier implements ItemClassifier using Google's Gemini models.
type GeminiClassifier struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiClassifier initializes a new Gemini client.
// apiKey should be provided from environment variables.
func NewGeminiClassifier(ctx context.Context, apiKey string) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Flash keeps latency low; classification runs on the booking request path.
	model := client.GenerativeModel("gemini-2.0-flash")

	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"

	// Low temperature: the answer must come from a closed list.
	model.SetTemperature(0.1)

	return &GeminiClassifier{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (g *GeminiClassifier) Close() {
	g.client.Close()
}

// Classify asks the model for a category and normalizes the answer.
func (g *GeminiClassifier) Classify(ctx context.Context, description string) (string, error) {
	prompt := fmt.Sprintf("%s\n\nParcel description: %s", buildSystemPrompt(), description)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}

	result, err := parseClassification(text.String())
	if err != nil {
		return "", err
	}
	return normalizeCategory(result.Category), nil
}

func parseClassification(raw string) (*Classification, error) {
	cleanJSON := cleanJSONString(raw)
	var result Classification
	if err := json.Unmarshal([]byte(cleanJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, cleanJSON)
	}
	return &result, nil
}

// buildSystemPrompt constructs the instructions for the model.
func buildSystemPrompt() string {
	return fmt.Sprintf(`Role: You sort parcels for a cross-border freight carrier that ships personal goods by road and sea.

Task: read the parcel description written by the sender (often French, sometimes English or Wolof) and pick exactly ONE category.

Allowed categories: %s

RULES:
1. Answer with a JSON object: {"category": "...", "fragile": true|false, "reason": "..."}.
2. "category" MUST be copied verbatim from the allowed list. If nothing fits, use "other".
3. Mixed parcels: choose the category of the heaviest or most valuable item.
4. Set "fragile" for glass, screens, ceramics or anything described as fragile.
5. Keep "reason" under 15 words.`, strings.Join(Categories, ", "))
}

func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
