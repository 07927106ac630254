// Package anthropic implements the Anthropic manifold pipeline: a
// provider adapter exposing the Messages API models to the host as a
// family of selectable models.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"anthropic-manifold/internal/observability"
	"anthropic-manifold/internal/pipeline"
)

const (
	pipelineID   = "anthropic"
	pipelineName = "Anthropic"
)

// manifoldModels is the static model enumeration. A live fetch from
// the vendor could replace this without changing the contract.
var manifoldModels = []pipeline.ModelDescriptor{
	{ID: "claude-3-haiku-20240307", Name: "claude-3-haiku"},
	{ID: "claude-3-opus-20240229", Name: "claude-3-opus"},
	{ID: "claude-3-sonnet-20240229", Name: "claude-3-sonnet"},
}

// Manifold hosts the Messages API behind the pipeline contract. The
// vendor client handle is shared by all calls and replaced wholesale
// on a valves update; in-flight calls keep the handle they started
// with.
type Manifold struct {
	mu         sync.RWMutex
	client     *Client
	httpClient *http.Client
}

// New constructs the manifold with a client for the given valves.
// httpClient may be nil, in which case http.DefaultClient is used.
func New(v pipeline.Valves, httpClient *http.Client) *Manifold {
	return &Manifold{
		client:     NewClient(v, httpClient),
		httpClient: httpClient,
	}
}

func (m *Manifold) ID() string {
	return pipelineID
}

func (m *Manifold) Name() string {
	return pipelineName
}

// Models returns the static model enumeration, identical across calls.
func (m *Manifold) Models() []pipeline.ModelDescriptor {
	result := make([]pipeline.ModelDescriptor, len(manifoldModels))
	copy(result, manifoldModels)
	return result
}

// Pipe executes one generation turn against the Messages API. The
// model id and messages are forwarded verbatim. Vendor failures on the
// initial call (rate limit, bad status, connection) come back as a
// text result of the form "Error: ..."; any other failure is returned
// as an error.
func (m *Manifold) Pipe(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	client := m.handle()
	payload := messageRequest{
		Model:         req.Model,
		Messages:      req.Messages,
		MaxTokens:     req.Options.MaxTokens,
		Temperature:   req.Options.Temperature,
		TopK:          req.Options.TopK,
		TopP:          req.Options.TopP,
		StopSequences: req.Options.StopSequences,
	}

	start := time.Now()

	if req.Options.Stream {
		stream, err := client.OpenStream(ctx, payload)
		observability.ObserveProviderCall(pipelineID, req.Model, outcome(err), time.Since(start))
		if err != nil {
			if text, ok := collapse(err); ok {
				return pipeline.Result{Text: text}, nil
			}
			return pipeline.Result{}, err
		}
		return pipeline.Result{Stream: stream}, nil
	}

	resp, err := client.Complete(ctx, payload)
	observability.ObserveProviderCall(pipelineID, req.Model, outcome(err), time.Since(start))
	if err != nil {
		if text, ok := collapse(err); ok {
			return pipeline.Result{Text: text}, nil
		}
		return pipeline.Result{}, err
	}

	if len(resp.Content) == 0 {
		return pipeline.Result{}, errors.New("anthropic response contained no content blocks")
	}

	// First content block wins; tool-use or other trailing blocks are
	// discarded.
	return pipeline.Result{Text: resp.Content[0].Text}, nil
}

// OnStartup logs readiness. The credential is not validated here; a
// bad key surfaces on the first vendor call.
func (m *Manifold) OnStartup(ctx context.Context) error {
	slog.Info("pipeline startup", "pipeline", pipelineID, "models", len(manifoldModels))
	return nil
}

// OnShutdown logs teardown. There is nothing to release: the HTTP
// client is shared and connections are pooled by the transport.
func (m *Manifold) OnShutdown(ctx context.Context) error {
	slog.Info("pipeline shutdown", "pipeline", pipelineID)
	return nil
}

// OnValvesUpdate replaces the vendor client handle with one built from
// the new valves. The swap is serialized; concurrent Pipe calls that
// already hold the old handle finish against it.
func (m *Manifold) OnValvesUpdate(v pipeline.Valves) error {
	m.mu.Lock()
	m.client = NewClient(v, m.httpClient)
	m.mu.Unlock()
	slog.Info("pipeline valves updated", "pipeline", pipelineID)
	return nil
}

func (m *Manifold) handle() *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// collapse turns a vendor-reported failure into the caller-facing
// error string. Only VendorError values collapse; everything else
// propagates.
func collapse(err error) (string, bool) {
	var ve *VendorError
	if errors.As(err, &ve) {
		return fmt.Sprintf("Error: %s", ve.Error()), true
	}
	return "", false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	default:
		var ve *VendorError
		if errors.As(err, &ve) {
			return ve.Kind.String()
		}
		return "error"
	}
}
