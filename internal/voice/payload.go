package voice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoFunctionCall is returned when a webhook carries no recognizable call.
var ErrNoFunctionCall = errors.New("webhook payload has no function call")

// WebhookRequest is the voice platform's server message. Three generations of
// the payload are accepted: message.toolCallList, message.toolCalls and the
// legacy message.functionCall.
type WebhookRequest struct {
	Message Message `json:"message"`
}

type Message struct {
	Type         string        `json:"type,omitempty"`
	ToolCallList []ToolCall    `json:"toolCallList,omitempty"`
	ToolCalls    []ToolCall    `json:"toolCalls,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
	Call         *Call         `json:"call,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names a function. Arguments may be an object or a JSON
// encoded string; the legacy variant uses Parameters instead.
type FunctionCall struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Call is the voice platform's call context.
type Call struct {
	ID          string         `json:"id,omitempty"`
	AssistantID string         `json:"assistantId,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Customer    *Customer      `json:"customer,omitempty"`
}

type Customer struct {
	Number string `json:"number,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Invocation is one decoded function call.
type Invocation struct {
	ToolCallID string
	Name       string
	Args       Arguments
	Call       *Call
}

// Invocation extracts the first function call, preferring toolCallList.
func (r WebhookRequest) Invocation() (Invocation, error) {
	msg := r.Message
	var (
		id string
		fn *FunctionCall
	)
	switch {
	case len(msg.ToolCallList) > 0:
		id, fn = msg.ToolCallList[0].ID, &msg.ToolCallList[0].Function
	case len(msg.ToolCalls) > 0:
		id, fn = msg.ToolCalls[0].ID, &msg.ToolCalls[0].Function
	case msg.FunctionCall != nil:
		fn = msg.FunctionCall
	}
	if fn == nil || strings.TrimSpace(fn.Name) == "" {
		return Invocation{ToolCallID: id}, ErrNoFunctionCall
	}

	raw := fn.Arguments
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = fn.Parameters
	}
	args, err := decodeArguments(raw)
	if err != nil {
		return Invocation{ToolCallID: id, Name: fn.Name}, err
	}
	return Invocation{ToolCallID: id, Name: strings.TrimSpace(fn.Name), Args: args, Call: msg.Call}, nil
}

func decodeArguments(raw json.RawMessage) (Arguments, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Arguments{}, nil
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		if strings.TrimSpace(encoded) == "" {
			return Arguments{}, nil
		}
		raw = []byte(encoded)
	}
	var args Arguments
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if args == nil {
		args = Arguments{}
	}
	return args, nil
}

// Arguments are the loosely typed function parameters.
type Arguments map[string]any

// String returns the first non-empty value among keys, rendered as text.
func (a Arguments) String(keys ...string) string {
	for _, key := range keys {
		switch v := a[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

// Int returns the first numeric value among keys. Numeric strings count.
func (a Arguments) Int(keys ...string) (int, bool) {
	for _, key := range keys {
		switch v := a[key].(type) {
		case float64:
			return int(v), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// Response is the webhook reply. It is always sent with HTTP 200.
type Response struct {
	Results []ToolResult `json:"results"`
}

type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}
