// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openrouter implements the provider contract against the OpenRouter
// chat completions API.
//
// OpenRouter fronts many model vendors behind one endpoint, so a single
// client covers Claude, GPT, Gemini, and the rest. Responses stream as
// Server-Sent Events; the final chunk carries token usage.
package openrouter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/parley/internal/provider"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultBaseURL is the base URL for the OpenRouter API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// maxRetries bounds the transparent retry of transient failures before
	// an error is surfaced to the orchestrator.
	maxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff delay.
	retryMaxDelay = 10 * time.Second

	// maxErrorBody limits how much of an error response body is read.
	maxErrorBody = 64 * 1024
)

// sharedStreamingClient is used for all requests. No client timeout:
// streaming lifetime is context-controlled.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// Client talks to OpenRouter over its SSE chat streaming API.
type Client struct {
	name    string
	apiKey  string
	baseURL string

	// limiter smooths request bursts below OpenRouter's per-key ceiling.
	limiter *rate.Limiter

	siteURL  string
	siteName string
}

// New creates an OpenRouter-backed provider registered under name.
func New(name, apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		name:     name,
		apiKey:   strings.TrimSpace(apiKey),
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
		siteURL:  "https://github.com/jeranaias/parley",
		siteName: "parley",
	}
}

// Name implements provider.Provider.
func (c *Client) Name() string {
	return c.name
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// KeyFingerprint returns a loggable identifier for the API key.
// Never exposes key fragments.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Usage    *usageOpts    `json:"usage,omitempty"`
}

type usageOpts struct {
	Include bool `json:"include"`
}

// streamChunk is one SSE data payload from the completions stream.
type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content     string `json:"content"`
			Reasoning   string `json:"reasoning,omitempty"`
			Annotations []struct {
				Type        string `json:"type"`
				URLCitation struct {
					URL string `json:"url"`
				} `json:"url_citation"`
			} `json:"annotations,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

type apiErrorResponse struct {
	Error struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// =============================================================================
// SEND
// =============================================================================

// Send implements provider.Provider. Transient failures before the first
// delta are retried with exponential backoff; once content has streamed,
// failures surface immediately so the caller never sees duplicated output.
func (c *Client) Send(ctx context.Context, req provider.Request, onDelta provider.DeltaFunc) (*provider.Result, error) {
	if !c.Configured() {
		return nil, provider.NewError(provider.KindAuth, "API key not configured", nil)
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, provider.NewError(provider.KindInternal, "encode request", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, provider.FromContext(ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, provider.FromContext(err)
		}

		result, streamed, err := c.attempt(ctx, body, req.Model, onDelta)
		if err == nil {
			return result, nil
		}
		pe := provider.AsError(err)
		if pe == nil || !pe.Retryable || streamed {
			return nil, err
		}
		log.Printf("openrouter: attempt %d failed (key %s): %v", attempt+1, c.KeyFingerprint(), pe.Kind)
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) buildRequest(req provider.Request) chatRequest {
	messages := make([]wireMessage, 0, len(req.Turns)+1)
	if req.System != "" {
		messages = append(messages, wireMessage{Role: "system", Content: req.System})
	}
	for _, turn := range req.Turns {
		messages = append(messages, wireMessage{Role: turn.Role, Content: turn.Content})
	}
	return chatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
		Usage:    &usageOpts{Include: true},
	}
}

// attempt performs one streaming request. The streamed flag reports whether
// any content reached the caller before the error.
func (c *Client) attempt(ctx context.Context, body []byte, model string, onDelta provider.DeltaFunc) (*provider.Result, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, provider.NewError(provider.KindInternal, "build request", err)
	}
	c.setHeaders(httpReq)

	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, provider.FromContext(ctx.Err())
		}
		return nil, false, provider.NewError(provider.KindConnection, "cannot reach OpenRouter", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, c.statusError(resp)
	}

	return c.consumeStream(ctx, resp.Body, model, onDelta)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

func (c *Client) consumeStream(ctx context.Context, body io.Reader, model string, onDelta provider.DeltaFunc) (*provider.Result, bool, error) {
	var content strings.Builder
	var thinking strings.Builder
	result := &provider.Result{Model: model}
	streamed := false
	seen := map[string]bool{}

	reader := newSSEReader(body)
	for {
		select {
		case <-ctx.Done():
			return nil, streamed, provider.FromContext(ctx.Err())
		default:
		}

		data, err := reader.readEvent()
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctx.Err() != nil {
				return nil, streamed, provider.FromContext(ctx.Err())
			}
			return nil, streamed, provider.NewError(provider.KindConnection, "stream interrupted", err)
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}

		if chunk.Model != "" {
			result.Model = chunk.Model
		}
		if chunk.Usage != nil {
			result.Usage = provider.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		for _, ann := range delta.Annotations {
			if ann.Type == "url_citation" && ann.URLCitation.URL != "" && !seen[ann.URLCitation.URL] {
				seen[ann.URLCitation.URL] = true
				result.Citations = append(result.Citations, ann.URLCitation.URL)
			}
		}
		if delta.Reasoning != "" {
			thinking.WriteString(delta.Reasoning)
			streamed = true
			if onDelta != nil {
				onDelta(provider.Delta{Text: delta.Reasoning, Thinking: true})
			}
		}
		if delta.Content != "" {
			content.WriteString(delta.Content)
			streamed = true
			if onDelta != nil {
				onDelta(provider.Delta{Text: delta.Content})
			}
		}
	}

	result.Text = content.String()
	result.Thinking = thinking.String()
	return result, streamed, nil
}

// =============================================================================
// ERROR NORMALIZATION
// =============================================================================

func (c *Client) statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := resp.Status
	var apiErr apiErrorResponse
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		detail = apiErr.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound ||
		resp.StatusCode == http.StatusUnprocessableEntity:
		return provider.NewError(provider.KindBadRequest, detail, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusPaymentRequired:
		return provider.NewError(provider.KindAuth, detail, nil)
	case resp.StatusCode == http.StatusRequestTimeout:
		return provider.NewError(provider.KindTimeout, detail, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		if d := retryAfter(resp); d > 0 {
			detail = fmt.Sprintf("%s (retry after %v)", detail, d)
		}
		return provider.NewError(provider.KindRateLimit, detail, nil)
	case resp.StatusCode >= 500:
		return provider.NewError(provider.KindOverloaded, detail, nil)
	default:
		return provider.NewError(provider.KindInternal, detail, nil)
	}
}

// retryAfter parses a Retry-After header as seconds or an HTTP date.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func backoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
