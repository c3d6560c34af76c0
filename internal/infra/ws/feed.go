package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fardannozami/healthsync/internal/domain"
)

// Feed is a domain.LiveFeed that follows paths through a Handler.
type Feed struct {
	baseURL string
	dialer  *websocket.Dialer
	log     *zap.Logger
}

func NewFeed(baseURL string, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{baseURL: baseURL, dialer: websocket.DefaultDialer, log: logger.Named("ws-feed")}
}

func (f *Feed) Subscribe(path string, onChange domain.ChangeHandler) (domain.Disposable, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("ws: parse %q: %w", f.baseURL, err)
	}
	q := u.Query()
	q.Set("path", path)
	u.RawQuery = q.Encode()

	conn, _, err := f.dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", path, err)
	}

	s := &subscription{conn: conn, done: make(chan struct{})}
	go s.read(path, onChange, f.log)
	return s, nil
}

type subscription struct {
	conn      *websocket.Conn
	done      chan struct{}
	closed    bool
	mu        sync.Mutex
	closeOnce sync.Once
}

func (s *subscription) read(path string, onChange domain.ChangeHandler, log *zap.Logger) {
	defer close(s.done)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				onChange(nil, fmt.Errorf("ws: %s: %w", path, err))
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			log.Warn("dropping malformed frame", zap.String("path", path), zap.Error(err))
			continue
		}
		if frame.Error != "" {
			onChange(nil, errors.New(frame.Error))
			continue
		}
		onChange(frame.Docs, nil)
	}
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close ends the subscription and waits for the reader to stop. It must not
// be called from inside the change handler.
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	<-s.done
	return err
}

// Remote pairs a document store with a live feed served elsewhere.
type Remote struct {
	domain.DocumentStore
	domain.LiveFeed
}

func NewRemote(docs domain.DocumentStore, feed domain.LiveFeed) *Remote {
	return &Remote{DocumentStore: docs, LiveFeed: feed}
}
