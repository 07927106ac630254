package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"anthropic-manifold/internal/pipeline"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "anthropic-manifold/0.1"
	apiVersion      = "2023-06-01"

	// DefaultBaseURL is the production Messages API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"
)

// Client is a minimal Messages API client. It is constructed once per
// credential and replaced wholesale when the credential changes; it is
// never mutated in place.
type Client struct {
	apiKey      string
	messagesURL string
	httpClient  *http.Client
}

// NewClient constructs a Messages API client for the given credential.
// The credential is not validated here; an invalid key surfaces as a
// vendor authentication error on the first call.
func NewClient(v pipeline.Valves, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL := strings.TrimRight(v.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:      v.APIKey,
		messagesURL: baseURL + "/v1/messages",
		httpClient:  httpClient,
	}
}

// messageRequest is the Messages API call shape. Generation options
// map onto it field for field.
type messageRequest struct {
	Model         string             `json:"model"`
	Messages      []pipeline.Message `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature"`
	TopK          int                `json:"top_k"`
	TopP          float64            `json:"top_p"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
}

// contentBlock is one unit of a generated message: a text segment,
// tool call, or other vendor-defined part.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usageBlock struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// messageResponse is the complete non-streaming Messages API response.
type messageResponse struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usageBlock     `json:"usage"`
}

// Complete performs a single-shot generation call.
func (c *Client) Complete(ctx context.Context, req messageRequest) (*messageResponse, error) {
	req.Stream = false

	httpResp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(httpResp)
	}

	var resp messageResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}
	return &resp, nil
}

// OpenStream performs a streaming generation call and hands the
// response body to a MessageStream. The caller owns the stream and
// must drain or close it.
func (c *Client) OpenStream(ctx context.Context, req messageRequest) (*MessageStream, error) {
	req.Stream = true

	httpResp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode >= 400 {
		defer httpResp.Body.Close()
		return nil, parseAPIError(httpResp)
	}

	return newMessageStream(httpResp.Body), nil
}

func (c *Client) post(ctx context.Context, payload messageRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &VendorError{Kind: FaultConnection, Message: err.Error(), cause: err}
	}
	return httpResp, nil
}

type apiErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseAPIError converts a non-2xx Messages API response into a
// VendorError, classifying rate limiting separately.
func parseAPIError(resp *http.Response) error {
	kind := FaultStatus
	if resp.StatusCode == http.StatusTooManyRequests {
		kind = FaultRateLimit
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return &VendorError{
			Kind:    kind,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("status %d and unreadable body: %v", resp.StatusCode, err),
		}
	}

	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &VendorError{
			Kind:    kind,
			Status:  resp.StatusCode,
			Type:    apiErr.Error.Type,
			Message: apiErr.Error.Message,
		}
	}

	return &VendorError{
		Kind:    kind,
		Status:  resp.StatusCode,
		Message: strings.TrimSpace(string(body)),
	}
}
