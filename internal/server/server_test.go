package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"anthropic-manifold/internal/config"
	"anthropic-manifold/internal/pipeline"
)

// sliceStream replays canned fragments as a pipeline.Stream.
type sliceStream struct {
	fragments []string
	pos       int
	err       error
	closed    bool
}

func (s *sliceStream) Next() bool {
	if s.pos >= len(s.fragments) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Text() string { return s.fragments[s.pos-1] }
func (s *sliceStream) Err() error   { return s.err }
func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// stubPipeline records what the server hands it and replies with a
// canned result.
type stubPipeline struct {
	models     []pipeline.ModelDescriptor
	result     pipeline.Result
	err        error
	lastReq    pipeline.Request
	lastValves pipeline.Valves
}

func (s *stubPipeline) ID() string                         { return "stub" }
func (s *stubPipeline) Name() string                       { return "Stub" }
func (s *stubPipeline) Models() []pipeline.ModelDescriptor { return s.models }

func (s *stubPipeline) Pipe(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	s.lastReq = req
	return s.result, s.err
}

func (s *stubPipeline) OnStartup(ctx context.Context) error  { return nil }
func (s *stubPipeline) OnShutdown(ctx context.Context) error { return nil }
func (s *stubPipeline) OnValvesUpdate(v pipeline.Valves) error {
	s.lastValves = v
	return nil
}

func newTestServer(t *testing.T, stub *stubPipeline) *Server {
	t.Helper()

	registry := pipeline.NewRegistry()
	if err := registry.Register(stub); err != nil {
		t.Fatalf("register stub: %v", err)
	}

	cfg := config.Default()
	cfg.Anthropic.BaseURL = "https://vendor.test"

	srv, err := New(cfg, registry)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func defaultStub() *stubPipeline {
	return &stubPipeline{
		models: []pipeline.ModelDescriptor{
			{ID: "model-a", Name: "a"},
			{ID: "model-b", Name: "b"},
		},
		result: pipeline.Result{Text: "canned reply"},
	}
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.app.ServeHTTP(rec, req)
	return rec
}

const chatBody = `{"model": "model-a", "messages": [{"role": "user", "content": "hi"}]}`

func TestHealth(t *testing.T) {
	srv := newTestServer(t, defaultStub())

	rec := doJSON(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListModels(t *testing.T) {
	srv := newTestServer(t, defaultStub())

	rec := doJSON(srv, http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var payload struct {
		Data []pipeline.ModelDescriptor `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Data) != 2 || payload.Data[0].ID != "model-a" || payload.Data[1].ID != "model-b" {
		t.Errorf("unexpected model list: %+v", payload.Data)
	}
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	stub := defaultStub()
	srv := newTestServer(t, stub)

	rec := doJSON(srv, http.MethodPost, "/v1/chat/completions", chatBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var payload completionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Content != "canned reply" || payload.Model != "model-a" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	if stub.lastReq.Model != "model-a" {
		t.Errorf("model not forwarded: %q", stub.lastReq.Model)
	}
	if len(stub.lastReq.Messages) != 1 || stub.lastReq.Messages[0].Content != "hi" {
		t.Errorf("messages not forwarded: %+v", stub.lastReq.Messages)
	}
	if stub.lastReq.Options.MaxTokens != pipeline.DefaultMaxTokens {
		t.Errorf("expected default max_tokens, got %d", stub.lastReq.Options.MaxTokens)
	}
}

func TestChatCompletionsForwardsOptions(t *testing.T) {
	stub := defaultStub()
	srv := newTestServer(t, stub)

	body := `{
		"model": "model-a",
		"messages": [{"role": "user", "content": "hi"}],
		"max_tokens": 64,
		"temperature": 0.3,
		"stop": ["END"],
		"unknown_knob": 12
	}`
	rec := doJSON(srv, http.MethodPost, "/v1/chat/completions", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	opts := stub.lastReq.Options
	if opts.MaxTokens != 64 || opts.Temperature != 0.3 {
		t.Errorf("options not forwarded: %+v", opts)
	}
	if len(opts.StopSequences) != 1 || opts.StopSequences[0] != "END" {
		t.Errorf("stop sequences not forwarded: %v", opts.StopSequences)
	}
	if opts.TopK != pipeline.DefaultTopK {
		t.Errorf("expected default top_k, got %d", opts.TopK)
	}
}

func TestChatCompletionsUnknownModel(t *testing.T) {
	srv := newTestServer(t, defaultStub())

	body := `{"model": "missing", "messages": [{"role": "user", "content": "hi"}]}`
	rec := doJSON(srv, http.MethodPost, "/v1/chat/completions", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}

	var payload errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload.Error.Type != "invalid_request_error" {
		t.Errorf("unexpected error type %q", payload.Error.Type)
	}
}

func TestChatCompletionsRejectsBadBodies(t *testing.T) {
	srv := newTestServer(t, defaultStub())

	cases := map[string]string{
		"empty":       "",
		"not json":    "{",
		"no model":    `{"messages": [{"role": "user", "content": "hi"}]}`,
		"no messages": `{"model": "model-a", "messages": []}`,
		"bad role":    `{"model": "model-a", "messages": [{"role": "tool", "content": "x"}]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(srv, http.MethodPost, "/v1/chat/completions", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestChatCompletionsPipeErrorMapsToBadGateway(t *testing.T) {
	stub := defaultStub()
	stub.result = pipeline.Result{}
	stub.err = errors.New("boom")
	srv := newTestServer(t, stub)

	rec := doJSON(srv, http.MethodPost, "/v1/chat/completions", chatBody)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body)
	}
}

func TestChatCompletionsStreamingRelay(t *testing.T) {
	stub := defaultStub()
	stream := &sliceStream{fragments: []string{"", "He", "llo"}}
	stub.result = pipeline.Result{Stream: stream}
	srv := newTestServer(t, stub)

	body := `{"model": "model-a", "messages": [{"role": "user", "content": "hi"}], "stream": true}`
	rec := doJSON(srv, http.MethodPost, "/v1/chat/completions", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", ct)
	}

	want := []string{
		`data: {"content":""}`,
		`data: {"content":"He"}`,
		`data: {"content":"llo"}`,
		`data: [DONE]`,
	}
	got := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	if len(got) != len(want) {
		t.Fatalf("expected records %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if !stream.closed {
		t.Error("stream must be closed after the relay")
	}
	if !stub.lastReq.Options.Stream {
		t.Error("stream option not forwarded to the pipeline")
	}
}

func TestValvesUpdateExplicitKey(t *testing.T) {
	stub := defaultStub()
	srv := newTestServer(t, stub)

	rec := doJSON(srv, http.MethodPost, "/v1/valves/update", `{"api_key": "sk-explicit"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if stub.lastValves.APIKey != "sk-explicit" {
		t.Errorf("expected explicit key, got %q", stub.lastValves.APIKey)
	}
	if stub.lastValves.BaseURL != "https://vendor.test" {
		t.Errorf("expected configured base url, got %q", stub.lastValves.BaseURL)
	}
}

func TestValvesUpdateFallsBackToEnvironment(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "sk-env")

	stub := defaultStub()
	srv := newTestServer(t, stub)

	rec := doJSON(srv, http.MethodPost, "/v1/valves/update", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if stub.lastValves.APIKey != "sk-env" {
		t.Errorf("expected env key, got %q", stub.lastValves.APIKey)
	}
}
