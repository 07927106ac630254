package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"anthropic-manifold/internal/pipeline"
)

// chatRequest is the inbound chat completion body: model, message
// history, and a free-form configuration bag from which recognized
// generation options are extracted. Unrecognized keys are ignored.
type chatRequest struct {
	Model    string
	Messages []pipeline.Message
	Options  pipeline.Options
}

// UnmarshalJSON decodes the fixed fields and re-reads the body as a
// bag for option extraction.
func (r *chatRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model    string             `json:"model"`
		Messages []pipeline.Message `json:"messages"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	var bag map[string]any
	if err := json.Unmarshal(data, &bag); err != nil {
		return fmt.Errorf("decode chat request options: %w", err)
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Messages = raw.Messages
	r.Options = pipeline.ParseOptions(bag)

	return r.validate()
}

func (r *chatRequest) validate() error {
	if r.Model == "" {
		return errors.New("model must be provided")
	}
	if len(r.Messages) == 0 {
		return errors.New("at least one message is required")
	}
	for i, msg := range r.Messages {
		switch msg.Role {
		case pipeline.RoleUser, pipeline.RoleAssistant, pipeline.RoleSystem:
		default:
			return fmt.Errorf("messages[%d]: invalid role %q", i, msg.Role)
		}
	}
	return nil
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

// decodeOptionalBody is decodeRequestBody for notifications whose body
// may legitimately be empty.
func decodeOptionalBody[T any](c echo.Context, target *T) error {
	err := decodeRequestBody(c, target)

	var reqErr requestError
	if errors.As(err, &reqErr) && reqErr.Message == "request body is required" {
		return nil
	}
	return err
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func errorHandler(err error, c echo.Context) {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprintf("%v", he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}
