package clients

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/tmc/langchaingo/llms/googleai"
)

const (
	// DefaultModel is the model used when the config does not name one.
	DefaultModel = "gemini-3-flash-preview"
)

// GoogleAi builds a langchaingo client for the given Gemini model.
// The API key comes from GOOGLE_API_KEY (a .env file is honored if present).
func GoogleAi(ctx context.Context, modelName string) (*googleai.GoogleAI, error) {
	_ = godotenv.Load()

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
	}

	if modelName == "" {
		modelName = DefaultModel
	}

	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(modelName))
	if err != nil {
		return nil, fmt.Errorf("failed to init Google AI client: %w", err)
	}

	return llm, nil
}
