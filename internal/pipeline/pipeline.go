// Package pipeline defines the contract between the hosting HTTP layer
// and provider pipelines: message and model types, the generation
// options bag, and the lifecycle hooks the host invokes.
package pipeline

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversational message, passed through to the
// vendor verbatim: no reformatting, truncation, or token counting.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ModelDescriptor identifies a remote model and its display name.
type ModelDescriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Request is a single unit of work handed to a pipeline.
type Request struct {
	Model    string
	Messages []Message
	Options  Options
}

// Stream is a pull-based, forward-only sequence of generated text
// fragments. It is not restartable; a caller that stops pulling simply
// abandons it. Close releases the underlying transport.
type Stream interface {
	// Next advances to the next fragment. It returns false when the
	// vendor stream closes or an error occurs; consult Err afterwards.
	Next() bool

	// Text returns the fragment produced by the last successful Next.
	Text() string

	// Err reports a failure encountered mid-stream, if any.
	Err() error

	Close() error
}

// Result is the outcome of a Pipe call: exactly one of Text or Stream
// is populated, depending on whether streaming was requested. Vendor
// failures on the initial call are reported through Text as a plain
// "Error: ..." string rather than an error value.
type Result struct {
	Text   string
	Stream Stream
}

// Streaming reports whether the result carries a fragment stream.
func (r Result) Streaming() bool {
	return r.Stream != nil
}

// Valves holds the mutable configuration a pipeline receives from the
// host. Updating valves replaces the pipeline's vendor client handle.
type Valves struct {
	APIKey  string
	BaseURL string
}

// Pipeline is a hosted model provider. Implementations must be safe
// for concurrent use by multiple goroutines.
type Pipeline interface {
	// ID returns the stable pipeline identifier (e.g. "anthropic").
	ID() string

	// Name returns the human-readable pipeline name.
	Name() string

	// Models enumerates the models this pipeline can address. The
	// result is stable across calls.
	Models() []ModelDescriptor

	// Pipe executes one generation turn. The model id is forwarded to
	// the vendor without validation.
	Pipe(ctx context.Context, req Request) (Result, error)

	// OnStartup is invoked once before the host starts serving.
	OnStartup(ctx context.Context) error

	// OnShutdown is invoked once during graceful shutdown.
	OnShutdown(ctx context.Context) error

	// OnValvesUpdate is invoked when the host changes pipeline
	// configuration. It must be safe to call at any time; in-flight
	// Pipe calls are not cancelled.
	OnValvesUpdate(v Valves) error
}
