package handler

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"mark/internal/gateway/hub"
)

// ProgressHandler streams run progress events over a websocket.
type ProgressHandler struct {
	events *hub.Hub
}

func NewProgressHandler(events *hub.Hub) *ProgressHandler {
	return &ProgressHandler{events: events}
}

const (
	progressWSWriteWait = 10 * time.Second
	progressWSPongWait  = 60 * time.Second
	progressWSPingEvery = (progressWSPongWait * 9) / 10
)

var progressWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleProgressWS upgrades /ws/runs. The optional run_id query parameter
// narrows the stream to one run; otherwise every run's events are sent.
func (h *ProgressHandler) HandleProgressWS(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))

	conn, err := progressWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(progressWSPongWait)); err != nil {
		log.Printf("progress ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(progressWSPongWait))
	})

	notices, cancel := h.events.Subscribe(runID)
	defer cancel()

	done := make(chan struct{})
	// Reader goroutine only services control frames; any read error ends the
	// session.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(progressWSPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case n := <-notices:
			if err := conn.SetWriteDeadline(time.Now().Add(progressWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(progressWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
