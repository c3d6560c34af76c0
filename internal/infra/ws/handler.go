// Package ws relays live feed snapshots over WebSocket so that clients can
// subscribe to a remote document store they do not share a process with.
package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fardannozami/healthsync/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 25 * time.Second
)

// Frame is one snapshot pushed to a subscriber.
type Frame struct {
	Path  string             `json:"path"`
	Docs  []domain.RemoteDoc `json:"docs"`
	Error string             `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		return strings.Contains(origin, "://"+r.Host)
	},
}

// Handler serves one live subscription per connection. The path to follow
// is taken from the "path" query parameter.
type Handler struct {
	feed domain.LiveFeed
	log  *zap.Logger
}

func NewHandler(feed domain.LiveFeed, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{feed: feed, log: logger.Named("ws")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Query().Get("path"), "/")
	if path == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(f Frame) error {
		msg, err := json.Marshal(f)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, msg)
	}

	sub, err := h.feed.Subscribe(path, func(docs []domain.RemoteDoc, err error) {
		f := Frame{Path: path, Docs: docs}
		if err != nil {
			f.Error = err.Error()
		}
		if err := send(f); err != nil {
			h.log.Debug("push failed", zap.String("path", path), zap.Error(err))
		}
	})
	if err != nil {
		_ = send(Frame{Path: path, Error: err.Error()})
		return
	}
	defer sub.Close()
	h.log.Info("subscriber connected", zap.String("path", path))

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	// read loop ends on client close/error
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Info("subscriber gone", zap.String("path", path))
			return
		}
	}
}
