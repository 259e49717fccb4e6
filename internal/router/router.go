// Package router parses frames received on the external gateway and
// dispatches them by their "action" field.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrMalformedMessage is returned for frames that are not valid JSON.
// The frame is dropped; the connection stays open and nothing is sent back.
var ErrMalformedMessage = errors.New("malformed message")

// ActionInference is the only action with a built-in handler.
const ActionInference = "inference"

// Message is a parsed inbound frame.
type Message struct {
	Action string
	// Fields holds every top-level key of the frame, "action" included.
	Fields map[string]json.RawMessage
}

// HandlerFunc handles one action. A nil reply means nothing is sent back.
type HandlerFunc func(ctx context.Context, msg Message) (reply any, err error)

// Ack is the acknowledgment written for accepted inference requests.
type Ack struct {
	Status string `json:"status"`
}

// Router maps action names to handlers. It keeps no per-connection state,
// so one Router serves every connection of a gateway concurrently.
type Router struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New creates a Router with the inference handler registered.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
	r.Register(ActionInference, handleInference)
	return r
}

// Register installs h for action, replacing any previous handler.
// Actions without a handler are ignored silently.
func (r *Router) Register(action string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
}

// Handle parses raw and dispatches it. It returns the encoded reply, or nil
// when the action produces none. Invalid JSON yields ErrMalformedMessage and
// is logged once here; callers should not log it again.
func (r *Router) Handle(ctx context.Context, raw []byte) ([]byte, error) {
	msg, ok, err := parse(raw)
	if err != nil {
		r.logger.Error("message parsing failed",
			"payload", string(raw),
			"error", err,
		)
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	r.mu.RLock()
	h, found := r.handlers[msg.Action]
	r.mu.RUnlock()
	if !found {
		r.logger.Debug("ignoring unrecognized action", "action", msg.Action)
		return nil, nil
	}

	reply, err := h(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("action %q: %w", msg.Action, err)
	}
	if reply == nil {
		return nil, nil
	}
	out, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("encoding reply for %q: %w", msg.Action, err)
	}
	return out, nil
}

// parse decodes raw in a single pass. Syntax errors make the frame
// malformed. Valid JSON that is not an object, or has no string "action",
// gives ok=false and no error; such frames are treated like unknown actions.
func parse(raw []byte) (msg Message, ok bool, err error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Message{}, false, nil
		}
		return Message{}, false, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	rawAction, present := fields["action"]
	if !present {
		return Message{}, false, nil
	}
	var action string
	if err := json.Unmarshal(rawAction, &action); err != nil {
		return Message{}, false, nil
	}
	return Message{Action: action, Fields: fields}, true, nil
}

// handleInference acknowledges the request. No model runs behind it.
func handleInference(_ context.Context, _ Message) (any, error) {
	return Ack{Status: "received"}, nil
}
