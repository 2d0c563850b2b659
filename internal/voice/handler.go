package voice

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

// Handler serves the voice platform's function-call webhook.
type Handler struct {
	router *Router
	replay ReplayStore
	logger *logging.Logger
}

func NewHandler(router *Router, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{router: router, logger: logger}
}

// WithReplayStore enables answering retried tool calls from the store.
func (h *Handler) WithReplayStore(store ReplayStore) *Handler {
	h.replay = store
	return h
}

// HandleFunctionCall handles POST /vapi/webhooks/calendar/function-call.
// The voice platform only reads the payload, so every outcome is a 200.
func (h *Handler) HandleFunctionCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("voice: failed to read body", "error", err)
		writeResult(w, ToolResult{Error: "Invalid webhook payload."})
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Warn("voice: failed to parse webhook", "error", err)
		writeResult(w, ToolResult{Error: "Invalid webhook payload."})
		return
	}
	inv, err := req.Invocation()
	if err != nil {
		h.logger.Warn("voice: no usable function call", "error", err)
		writeResult(w, ToolResult{ToolCallID: inv.ToolCallID, Error: spokenError(err)})
		return
	}

	if cached, ok := h.lookupReplay(r, inv.ToolCallID); ok {
		h.logger.Info("voice: replayed function call", "function", inv.Name, "tool_call_id", inv.ToolCallID)
		writeResult(w, cached)
		return
	}

	result, err := h.router.Dispatch(r.Context(), inv)
	if err != nil {
		h.logger.Warn("voice: function call failed",
			"function", inv.Name, "tool_call_id", inv.ToolCallID, "call_id", callID(inv.Call), "error", err)
		writeResult(w, ToolResult{ToolCallID: inv.ToolCallID, Error: spokenError(err)})
		return
	}
	h.logger.Info("voice: function call handled", "function", inv.Name, "tool_call_id", inv.ToolCallID)
	res := ToolResult{ToolCallID: inv.ToolCallID, Result: result}
	h.rememberReplay(r, res)
	writeResult(w, res)
}

func (h *Handler) lookupReplay(r *http.Request, toolCallID string) (ToolResult, bool) {
	if h.replay == nil || toolCallID == "" {
		return ToolResult{}, false
	}
	res, ok, err := h.replay.Lookup(r.Context(), toolCallID)
	if err != nil {
		h.logger.Warn("voice: replay lookup failed", "tool_call_id", toolCallID, "error", err)
		return ToolResult{}, false
	}
	return res, ok
}

// rememberReplay stores successful answers only; failures may succeed on retry.
func (h *Handler) rememberReplay(r *http.Request, res ToolResult) {
	if h.replay == nil {
		return
	}
	if err := h.replay.Remember(r.Context(), res); err != nil {
		h.logger.Warn("voice: replay store failed", "tool_call_id", res.ToolCallID, "error", err)
	}
}

func writeResult(w http.ResponseWriter, res ToolResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Response{Results: []ToolResult{res}})
}

// ErrUpstreamUnavailable is reported when the webhook could not reach the
// scheduling API at all.
var ErrUpstreamUnavailable = errors.New("voice: scheduling api unavailable")

// FallbackResponse answers a raw webhook body without dispatching it. The
// tool call id is echoed when the body carries one.
func FallbackResponse(body []byte, cause error) Response {
	res := ToolResult{Error: spokenError(cause)}
	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err == nil {
		inv, _ := req.Invocation()
		res.ToolCallID = inv.ToolCallID
	}
	return Response{Results: []ToolResult{res}}
}
