package assessment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ashureev/vark-gateway/internal/identity"
)

// wsReply is a response body tagged with the status an HTTP client would have seen.
type wsReply struct {
	Body
	HTTPStatus int `json:"httpStatus"`
}

// WebSocketHandler runs assessment steps over a WebSocket. Each text frame
// is an AdvanceRequest and gets exactly one reply frame, in order.
type WebSocketHandler struct {
	ctrl           Advancer
	originPatterns []string
	logger         *slog.Logger
}

// NewWebSocketHandler creates a WebSocket transport. Origin patterns follow
// websocket.AcceptOptions; "*" accepts any origin.
func NewWebSocketHandler(ctrl Advancer, originPatterns []string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{ctrl: ctrl, originPatterns: originPatterns, logger: logger}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	callerID := identity.UserIDFromContext(r.Context())
	h.logger.Info("assessment websocket connection", "caller_id", callerID, "ip", identity.IPFromRequest(r))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Error("accept websocket", "error", err, "caller_id", callerID)
		return
	}
	ws.SetReadLimit(maxRequestBytes)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "assessment ended"); closeErr != nil {
			h.logger.Debug("close websocket", "error", closeErr, "caller_id", callerID)
		}
	}()

	h.readLoop(r.Context(), ws, callerID)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, callerID string) {
	for {
		typ, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("websocket closed by client", "caller_id", callerID)
			} else {
				h.logger.Warn("websocket read", "error", err, "caller_id", callerID)
			}
			return
		}

		var out Outcome
		var req AdvanceRequest
		if typ != websocket.MessageText || json.Unmarshal(message, &req) != nil {
			out = fail(http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		} else {
			if req.Mode == "" {
				req.Mode = ModeVark
			}
			out = h.ctrl.Advance(ctx, callerID, req)
		}

		if err := h.writeJSON(ctx, ws, wsReply{Body: out.Body, HTTPStatus: out.Status}); err != nil {
			h.logger.Warn("websocket write", "error", err, "caller_id", callerID)
			return
		}
	}
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
