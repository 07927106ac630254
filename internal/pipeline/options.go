package pipeline

import "encoding/json"

// Generation defaults applied when the request body omits an option.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 1.0
	DefaultTopK        = 40
	DefaultTopP        = 0.9
)

// Options is the recognized subset of the request body's configuration
// bag. Unrecognized keys are ignored.
type Options struct {
	MaxTokens     int
	Temperature   float64
	TopK          int
	TopP          float64
	StopSequences []string
	Stream        bool
}

// DefaultOptions returns the option set used when the body carries no
// generation parameters at all.
func DefaultOptions() Options {
	return Options{
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopK:        DefaultTopK,
		TopP:        DefaultTopP,
	}
}

// ParseOptions extracts recognized generation options from a decoded
// request body, defaulting each absent field.
func ParseOptions(body map[string]any) Options {
	opts := DefaultOptions()
	if body == nil {
		return opts
	}

	if v, ok := extractInt(body, "max_tokens"); ok {
		opts.MaxTokens = v
	}
	if v, ok := extractFloat(body, "temperature"); ok {
		opts.Temperature = v
	}
	if v, ok := extractInt(body, "top_k"); ok {
		opts.TopK = v
	}
	if v, ok := extractFloat(body, "top_p"); ok {
		opts.TopP = v
	}
	if v, ok := extractStringSlice(body, "stop"); ok {
		opts.StopSequences = v
	}
	if v, ok := body["stream"].(bool); ok {
		opts.Stream = v
	}

	return opts
}

func extractFloat(body map[string]any, key string) (float64, bool) {
	value, ok := body[key]
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

func extractInt(body map[string]any, key string) (int, bool) {
	value, ok := body[key]
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func extractStringSlice(body map[string]any, key string) ([]string, bool) {
	value, ok := body[key]
	if !ok {
		return nil, false
	}
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			result = append(result, str)
		}
		return result, true
	}
	return nil, false
}
