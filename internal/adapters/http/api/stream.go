package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/reel/internal/domain/types"
	"github.com/okian/reel/pkg/logger"
	"github.com/okian/reel/pkg/metrics"
)

const streamWriteTimeout = 5 * time.Second

// streamMessage is one frame of the recommendation stream.
type streamMessage struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	Done    int    `json:"done,omitempty"`
	Total   int    `json:"total,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	*types.Recommendation
}

// StreamHandler handles GET /ws/recommendations/{userId}.
type StreamHandler struct {
	deps     RecommendationDependencies
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps RecommendationDependencies) *StreamHandler {
	return &StreamHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleStream upgrades to a WebSocket and sends start, one progress frame
// per scored movie and then the recommendations or an error.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		metrics.RecordWebSocketStream("upgrade_failed")
		return
	}
	defer conn.Close() //nolint:errcheck // best effort

	ctx := r.Context()
	log := logger.Get().Named("stream")
	userID := r.PathValue("userId")

	send := func(m streamMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteJSON(m)
	}

	if err := send(streamMessage{Type: "start", UserID: userID}); err != nil {
		metrics.RecordWebSocketStream("write_failed")
		return
	}

	var writeErr error
	rec, err := h.deps.RecommendStream(ctx, userID, func(done, total int) {
		if writeErr == nil {
			writeErr = send(streamMessage{Type: "progress", Done: done, Total: total})
		}
	})
	if writeErr != nil {
		log.Debug(ctx, "client went away", logger.Error(writeErr))
		metrics.RecordWebSocketStream("write_failed")
		return
	}
	if err != nil {
		_, code := statusForError(err)
		_ = send(streamMessage{Type: "error", Code: code, Message: err.Error()})
		metrics.RecordWebSocketStream("error")
	} else {
		_ = send(streamMessage{Type: "recommendations", UserID: rec.UserID, Recommendation: &rec})
		metrics.RecordWebSocketStream("ok")
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
