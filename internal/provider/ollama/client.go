// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama implements the provider contract against a local Ollama server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/provider"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultBaseURL uses the explicit IPv4 address instead of localhost
	// to avoid IPv6 resolution issues on Windows.
	DefaultBaseURL = "http://127.0.0.1:11434"

	// maxConnectRetries bounds the transparent retry of connection-phase
	// failures before an error is surfaced to the orchestrator.
	maxConnectRetries = 3

	// retryDelay is the base delay between connection retries.
	retryDelay = 500 * time.Millisecond
)

// Client talks to an Ollama server over its NDJSON chat streaming API.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// New creates an Ollama-backed provider registered under name.
func New(name, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// No client timeout: streaming lifetime is context-controlled.
		httpClient: &http.Client{},
	}
}

// Name implements provider.Provider.
func (c *Client) Name() string {
	return c.name
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
}

type chatChunk struct {
	Model   string `json:"model"`
	Message struct {
		Role     string `json:"role"`
		Content  string `json:"content"`
		Thinking string `json:"thinking,omitempty"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`

	// Error carries an in-band failure report emitted mid-stream.
	Error string `json:"error,omitempty"`
}

type apiError struct {
	Error string `json:"error"`
}

// =============================================================================
// SEND
// =============================================================================

// Send implements provider.Provider. Deltas are delivered line by line as
// the server streams them; the final chunk carries token usage.
func (c *Client) Send(ctx context.Context, req provider.Request, onDelta provider.DeltaFunc) (*provider.Result, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, provider.NewError(provider.KindInternal, "encode request", err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	return c.consumeStream(ctx, resp.Body, onDelta)
}

func (c *Client) buildRequest(req provider.Request) chatRequest {
	messages := make([]wireMessage, 0, len(req.Turns)+1)
	if req.System != "" {
		messages = append(messages, wireMessage{Role: "system", Content: req.System})
	}
	for _, turn := range req.Turns {
		messages = append(messages, wireMessage{Role: turn.Role, Content: turn.Content})
	}
	return chatRequest{Model: req.Model, Messages: messages, Stream: true}
}

// post issues the chat request, transparently retrying connection-phase
// failures. Once a response body is open, no retry happens: the stream is
// the orchestrator's to consume or cancel.
func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxConnectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, provider.FromContext(ctx.Err())
			case <-time.After(retryDelay * time.Duration(1<<(attempt-1))):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return nil, provider.NewError(provider.KindInternal, "build request", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		log.Printf("ollama request: POST /api/chat (%d bytes)", len(body))
		resp, err := c.httpClient.Do(httpReq)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, provider.FromContext(ctx.Err())
		}
		lastErr = err
	}
	return nil, connectionError(lastErr)
}

func (c *Client) consumeStream(ctx context.Context, body io.Reader, onDelta provider.DeltaFunc) (*provider.Result, error) {
	var content strings.Builder
	var thinking strings.Builder
	result := &provider.Result{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, provider.FromContext(ctx.Err())
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return nil, classifyMessage(chunk.Error)
		}

		if chunk.Model != "" {
			result.Model = chunk.Model
		}
		if chunk.Message.Thinking != "" {
			thinking.WriteString(chunk.Message.Thinking)
			if onDelta != nil {
				onDelta(provider.Delta{Text: chunk.Message.Thinking, Thinking: true})
			}
		}
		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			if onDelta != nil {
				onDelta(provider.Delta{Text: chunk.Message.Content})
			}
		}
		if chunk.Done {
			result.Usage = provider.Usage{
				PromptTokens:     chunk.PromptEvalCount,
				CompletionTokens: chunk.EvalCount,
			}
			break
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, provider.FromContext(ctx.Err())
		}
		return nil, provider.NewError(provider.KindConnection, "stream interrupted", err)
	}

	result.Text = content.String()
	result.Thinking = thinking.String()
	return result, nil
}

// =============================================================================
// ERROR NORMALIZATION
// =============================================================================

func (c *Client) statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	detail := ""
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil {
		detail = apiErr.Error
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		if detail == "" {
			detail = "rejected by server"
		}
		return provider.NewError(provider.KindBadRequest, detail, nil)
	case resp.StatusCode >= 500:
		if detail == "" {
			detail = resp.Status
		}
		return provider.NewError(provider.KindOverloaded, detail, nil)
	default:
		return provider.NewError(provider.KindInternal, resp.Status, nil)
	}
}

func connectionError(err error) error {
	detail := "cannot reach Ollama"
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return provider.NewError(provider.KindTimeout, "connection timed out", err)
	}
	return provider.NewError(provider.KindConnection, detail, err)
}

// classifyMessage maps an in-band Ollama error string to an error kind.
func classifyMessage(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found"):
		return provider.NewError(provider.KindBadRequest, msg, nil)
	case strings.Contains(lower, "loading") || strings.Contains(lower, "unavailable"):
		return provider.NewError(provider.KindOverloaded, msg, nil)
	default:
		return provider.NewError(provider.KindInternal, msg, nil)
	}
}
