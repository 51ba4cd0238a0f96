package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"recaps/internal/types"
)

const loopsAPIBase = "https://app.loops.so/api/v1"

// LoopsClientConfig configures a LoopsClient.
type LoopsClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// LoopsClient sends transactional events to Loops. Loops turns each event
// into an email using the template bound to the event name.
type LoopsClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewLoopsClient builds a client with a dedicated breaker and a short retry
// policy.
func NewLoopsClient(httpClient *http.Client, cfg LoopsClientConfig) *LoopsClient {
	base := NewBaseClient(httpClient, "loops",
		RetryPolicy{MaxRetries: 2, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second},
		"recaps/1.0",
	)
	return NewLoopsClientWithBase(base, cfg)
}

// NewLoopsClientWithBase builds a client over a preconfigured BaseClient.
func NewLoopsClientWithBase(base *BaseClient, cfg LoopsClientConfig) *LoopsClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = loopsAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LoopsClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// loopsEventResponse is the body Loops returns for events/send.
type loopsEventResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SendEvent posts the event to events/send.
//
// A response Loops answered, successful or not, is returned as a receipt
// carrying the raw body so it can be stored. Transport failures, 429 and 5xx
// after retries are returned as errors.
func (c *LoopsClient) SendEvent(ctx context.Context, ev types.EmailEvent) (*types.EmailReceipt, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalEncoding, "failed to encode loops event", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events/send", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build loops request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmailProvider, "failed to read loops response", err)
	}

	receipt := &types.EmailReceipt{Raw: raw}
	var parsed loopsEventResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// Keep non-JSON bodies readable in the stored response.
		receipt.Raw, _ = json.Marshal(map[string]any{"status": resp.StatusCode, "body": string(raw)})
		receipt.Message = fmt.Sprintf("loops returned %d with a non-JSON body", resp.StatusCode)
		return receipt, nil
	}

	receipt.Success = parsed.Success && resp.StatusCode < 300
	receipt.Message = parsed.Message
	if !receipt.Success && receipt.Message == "" {
		receipt.Message = fmt.Sprintf("loops returned %d", resp.StatusCode)
	}
	if !receipt.Success {
		c.logger.WarnContext(ctx, "loops rejected event",
			"event", ev.EventName,
			"user_uuid", ev.UserID,
			"status", resp.StatusCode,
			"message", receipt.Message,
		)
	}
	return receipt, nil
}
