// Package perplexity provides the suggestion source adapter over the
// Perplexity chat-completions API. It asks a language model for artists
// stylistically similar to a subject and parses the reply into a bounded
// list of artist names.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nichefy/nichefy/internal/niche"
)

const (
	baseURL   = "https://api.perplexity.ai/chat/completions"
	userAgent = "nichefy/1.0"

	// requestTimeout bounds each model attempt.
	requestTimeout = 20 * time.Second

	// maxGenreHints caps how many genres flavor the prompt.
	maxGenreHints = 3

	temperature = 0.8
	maxTokens   = 800
)

// systemPrompt steers the model toward clean one-name-per-line output.
const systemPrompt = "You are a music expert specializing in discovering " +
	"lesser-known and niche artists. When asked about similar artists, provide " +
	"only artist names, one per line, without numbers, bullet points, or " +
	"explanations. Prioritize indie, underground, or emerging artists over " +
	"mainstream ones."

// models are tried in preference order; a model the API rejects as invalid
// falls through to the next.
var models = []string{
	"sonar",
	"sonar-pro",
	"llama-3.1-sonar-large-128k-online",
	"llama-3.1-sonar-small-128k-online",
	"llama-3-sonar-large-32k-online",
	"llama-3-sonar-small-32k-online",
}

// ErrNoModel is returned when every model in the preference list was rejected.
var ErrNoModel = errors.New("no suggestion model available")

// Config holds suggestion source configuration. An empty APIKey disables the
// adapter rather than failing.
type Config struct {
	APIKey string
}

// Client is a Perplexity API client.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// NewClient creates a suggestion client from the provided configuration.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: baseURL,
		logger:  logger.With().Str("component", "perplexity").Logger(),
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Suggest asks for artists similar to the subject and returns their names.
// When no API key is configured it returns an empty list without error, so
// the discovery engine can fall through to its other strategies.
func (c *Client) Suggest(ctx context.Context, subject string, genres []string) ([]string, error) {
	if !c.Enabled() {
		c.logger.Debug().Msg("no API key configured, skipping suggestion query")
		return nil, nil
	}

	content, err := c.complete(ctx, buildQuery(subject, genres))
	if err != nil {
		return nil, err
	}

	names := parseNames(content)
	c.logger.Debug().Int("count", len(names)).Str("subject", subject).Msg("suggestions parsed")
	return names, nil
}

// buildQuery constructs the user prompt for one suggestion request.
func buildQuery(subject string, genres []string) string {
	genreContext := ""
	if len(genres) > 0 {
		hints := genres
		if len(hints) > maxGenreHints {
			hints = hints[:maxGenreHints]
		}
		genreContext = fmt.Sprintf(" in the %s genre", strings.Join(hints, ", "))
	}
	return fmt.Sprintf(
		"List 20 artists similar to %s%s. Focus on lesser-known, indie, or "+
			"niche artists rather than mainstream ones. Provide only artist "+
			"names, one per line, without numbers or bullet points.",
		subject, genreContext)
}

// complete walks the model preference list until one answers, returning the
// response text of the first successful completion.
func (c *Client) complete(ctx context.Context, query string) (string, error) {
	var lastErr error

	for _, model := range models {
		content, retryable, err := c.tryModel(ctx, model, query)
		if err == nil {
			return content, nil
		}
		if !retryable {
			return "", err
		}
		c.logger.Debug().Err(err).Str("model", model).Msg("model attempt failed, trying next")
		lastErr = err
	}

	if lastErr == nil {
		lastErr = ErrNoModel
	}
	return "", fmt.Errorf("%w: %w", ErrNoModel, lastErr)
}

// tryModel performs a single chat-completion request. The second return
// value indicates whether the failure should fall through to the next model.
func (c *Client) tryModel(ctx context.Context, model, query string) (string, bool, error) {
	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures are worth retrying on another model endpoint.
		return "", true, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", false, fmt.Errorf("parsing response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return "", false, errors.New("response contained no choices")
		}
		return parsed.Choices[0].Message.Content, false, nil

	case resp.StatusCode == http.StatusBadRequest:
		// Typically an invalid-model error; fall through to the next model.
		var apiErr errorResponse
		msg := string(respBody)
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", true, fmt.Errorf("model %s rejected: %s", model, msg)

	default:
		return "", false, fmt.Errorf("suggestion API returned status %d", resp.StatusCode)
	}
}

// Ensure the adapter satisfies the engine's suggestion contract.
var _ niche.Suggester = (*Client)(nil)
