package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"go.uber.org/zap"

	"github.com/astra-cc/orchestrator/internal/core/ingress"
	"github.com/astra-cc/orchestrator/internal/pipeline"
	"github.com/astra-cc/orchestrator/pkg/logger"
)

// BridgeHandler upgrades the telephony bridge's connection to the framed
// binary websocket stream spec.md §6 describes and drives one Call (C1-C16)
// for the connection's lifetime. Mounted behind the same bearer token as
// the rest of the client API, since opening a media bridge is itself a
// Call-creating action a tenant authorizes with its own token.
type BridgeHandler struct {
	pipe *pipeline.Pipeline
}

// NewBridgeHandler wraps the process-wide Pipeline.
func NewBridgeHandler(pipe *pipeline.Pipeline) *BridgeHandler {
	return &BridgeHandler{pipe: pipe}
}

// SetupBridgeRoutes mounts /bridge/connect.
func (h *BridgeHandler) SetupBridgeRoutes(router *mux.Router) {
	router.HandleFunc("/bridge/connect", h.Connect).Methods(http.MethodGet)
}

// Connect upgrades the HTTP request to a websocket, opens a Call against
// the caller-supplied agent_id/caller_id, and pumps inbound RTP frames into
// it until the bridge disconnects. The opening handshake spec.md §6 calls
// out as "an opaque id in the stream's opening handshake" is this request's
// already-authenticated bearer token plus these two query parameters,
// rather than a second handshake token exchange: Session.Open (C1) mints
// the Call, so there is no pre-existing Call ID for a handshake token to
// scope itself to before the bridge connects.
func (h *BridgeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	tok := tokenFromContext(r.Context())
	agentID := r.URL.Query().Get("agent_id")
	callerID := r.URL.Query().Get("caller_id")
	if agentID == "" || callerID == "" {
		http.Error(w, "agent_id and caller_id query parameters are required", http.StatusBadRequest)
		return
	}

	conn, err := ingress.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Base().Warn("bridge: websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	out := ingress.NewBridge(conn, nil)
	call, err := h.pipe.StartCall(r.Context(), tok.OrgID, agentID, callerID, out)
	if err != nil {
		logger.Base().Error("bridge: start call", zap.String("agent_id", agentID), zap.Error(err))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "failed to start call"))
		return
	}

	readBridgeLoop(conn, call)

	if err := call.Close(context.Background(), "bridge_closed"); err != nil {
		logger.Base().Warn("bridge: close call", zap.Error(err))
	}
}

// readBridgeLoop reads framed RTP packets off conn until it closes, handing
// each to call.WriteFrame. Mirrors ingress.Bridge.Run's read loop, but feeds
// the Call's own Ring (unexported) instead of one the handler owns
// directly.
func readBridgeLoop(conn *websocket.Conn, call *pipeline.Call) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Base().Warn("bridge websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(data); err != nil {
			logger.Base().Warn("bridge: failed to unmarshal rtp packet", zap.Error(err))
			continue
		}

		if err := call.WriteFrame(pkt); err != nil {
			logger.Base().Info("bridge: write frame ended ring", zap.Error(err))
			return
		}
	}
}
