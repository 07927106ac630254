package pipeline

import (
	"context"
	"errors"
	"testing"
)

type stubPipeline struct {
	id     string
	models []ModelDescriptor
}

func (s *stubPipeline) ID() string                { return s.id }
func (s *stubPipeline) Name() string              { return s.id }
func (s *stubPipeline) Models() []ModelDescriptor { return s.models }
func (s *stubPipeline) Pipe(ctx context.Context, req Request) (Result, error) {
	return Result{Text: "stub"}, nil
}
func (s *stubPipeline) OnStartup(ctx context.Context) error  { return nil }
func (s *stubPipeline) OnShutdown(ctx context.Context) error { return nil }
func (s *stubPipeline) OnValvesUpdate(v Valves) error        { return nil }

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	p := &stubPipeline{id: "anthropic", models: []ModelDescriptor{
		{ID: "model-a", Name: "a"},
		{ID: "model-b", Name: "b"},
	}}

	if err := r.Register(p); err != nil {
		t.Fatalf("register: %v", err)
	}

	model, got, err := r.Lookup("model-b")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != p {
		t.Error("lookup returned the wrong pipeline")
	}
	if model.Name != "b" {
		t.Errorf("expected descriptor b, got %+v", model)
	}

	if _, _, err := r.Lookup("missing"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	first := &stubPipeline{id: "one", models: []ModelDescriptor{{ID: "shared", Name: "s"}}}
	second := &stubPipeline{id: "two", models: []ModelDescriptor{{ID: "shared", Name: "s"}}}

	if err := r.Register(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := r.Register(second); !errors.Is(err, ErrDuplicateModel) {
		t.Errorf("expected ErrDuplicateModel, got %v", err)
	}
	if err := r.Register(first); err == nil {
		t.Error("re-registering the same pipeline must fail")
	}
}

func TestRegistryModelsPreserveOrder(t *testing.T) {
	r := NewRegistry()
	p := &stubPipeline{id: "anthropic", models: []ModelDescriptor{
		{ID: "model-c", Name: "c"},
		{ID: "model-a", Name: "a"},
		{ID: "model-b", Name: "b"},
	}}
	if err := r.Register(p); err != nil {
		t.Fatalf("register: %v", err)
	}

	models := r.Models()
	want := []string{"model-c", "model-a", "model-b"}
	if len(models) != len(want) {
		t.Fatalf("expected %d models, got %d", len(want), len(models))
	}
	for i, id := range want {
		if models[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, models[i].ID)
		}
	}
}
