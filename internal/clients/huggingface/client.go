// Package huggingface calls a hosted text-classification model through the
// Hugging Face Inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
)

// ProviderName identifies the inference API in errors and logs
const ProviderName = "huggingface"

const (
	defaultBaseURL = "https://api-inference.huggingface.co"
	defaultModel   = "ProsusAI/finbert"
)

type inferenceRequest struct {
	Inputs  []string       `json:"inputs"`
	Options map[string]any `json:"options,omitempty"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Client is the Inference API classifier
type Client struct {
	baseURL    string
	model      string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a classifier for model. token may be empty for public models.
func NewClient(baseURL, model, token string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("client", ProviderName).Str("model", model).Logger(),
	}
}

// Model returns the configured model id
func (c *Client) Model() string {
	return c.model
}

// Warmup classifies a single probe text to confirm the model is reachable
func (c *Client) Warmup(ctx context.Context) error {
	_, err := c.Classify(ctx, []string{"markets are open"})
	return err
}

// Classify returns positive/negative/neutral probabilities for each text, in order.
func (c *Client) Classify(ctx context.Context, texts []string) ([]domain.SentimentLabels, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(inferenceRequest{
		Inputs:  texts,
		Options: map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/"+c.model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewTransientError(ProviderName, "", 0, err)
	}
	defer resp.Body.Close()

	if err := domain.ClassifyStatus(ProviderName, "", resp.StatusCode); err != nil {
		return nil, err
	}

	var raw [][]labelScore
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, domain.NewNoDataError(ProviderName, "", resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(raw) != len(texts) {
		return nil, domain.NewNoDataError(ProviderName, "", resp.StatusCode,
			fmt.Errorf("got %d results for %d inputs", len(raw), len(texts)))
	}

	out := make([]domain.SentimentLabels, len(raw))
	for i, scores := range raw {
		for _, s := range scores {
			switch strings.ToLower(s.Label) {
			case "positive":
				out[i].Positive = s.Score
			case "negative":
				out[i].Negative = s.Score
			case "neutral":
				out[i].Neutral = s.Score
			}
		}
	}

	c.log.Debug().Int("texts", len(texts)).Msg("Classified batch")
	return out, nil
}
