package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/fx"

	"github.com/HazyCorp/statesync/internal/statestore"
	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

const (
	// MessageStateUpdated is the type of every message pushed to subscribers.
	MessageStateUpdated = "state_updated"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second

	subscriberBuffer = 16
)

var subscribersGauge = metrics.NewGauge(`statesync_ws_subscribers`, nil)

type Message struct {
	Type   string            `json:"type"`
	Record statestore.Record `json:"record"`
}

// Subscription receives every record published after Subscribe returned.
type Subscription struct {
	ID uuid.UUID
	C  <-chan statestore.Record

	ch     chan statestore.Record
	cancel func()
}

// Cancel unregisters the subscription and closes C. Safe to call twice.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Hub fans committed records out to websocket subscribers of this process.
// Records are delivered in LastModified order: a record older than the last
// published one is dropped. A subscriber that cannot keep up with its buffer
// is dropped too; the client is expected to reconnect and receive the current
// record again.
type Hub struct {
	l *slog.Logger

	mu     sync.Mutex
	subs   map[uuid.UUID]*Subscription
	last   time.Time
	closed bool
}

func New(l *slog.Logger) *Hub {
	if l == nil {
		l = hzlog.NopLogger()
	}

	return &Hub{
		l:    l.With(slog.String("component", "broadcast")),
		subs: make(map[uuid.UUID]*Subscription),
	}
}

func NewFX(l *slog.Logger, lc fx.Lifecycle) *Hub {
	h := New(l)
	lc.Append(fx.StopHook(h.Close))

	return h
}

func encode(rec statestore.Record) ([]byte, error) {
	data, err := json.Marshal(Message{Type: MessageStateUpdated, Record: rec})
	if err != nil {
		return nil, errors.Wrap(err, "cannot encode state message")
	}

	return data, nil
}

// Publish sends rec to every subscriber without blocking. Commits finish in
// any order, so a record older than the newest published one is skipped.
// Equal timestamps are delivered: the service stamps two commits alike when
// the clock has not moved past the stored time.
func (h *Hub) Publish(rec statestore.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rec.LastModified.Before(h.last) {
		h.l.Debug(
			"skipped outdated record",
			slog.String("last_modified", statestore.FormatTime(rec.LastModified)),
			slog.String("published_last_modified", statestore.FormatTime(h.last)),
		)
		return
	}
	h.last = rec.LastModified

	for id, sub := range h.subs {
		select {
		case sub.ch <- rec:
		default:
			h.l.Warn("subscriber is too slow, dropping", slog.String("subscriber_id", id.String()))
			h.removeLocked(id)
		}
	}
}

// Subscribe registers a new subscriber. Its channel is closed when the
// subscriber is dropped, cancelled or the hub is closed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan statestore.Record, subscriberBuffer)
	sub := &Subscription{ID: uuid.New(), C: ch, ch: ch}
	sub.cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.removeLocked(sub.ID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		sub.cancel = func() {}
		return sub
	}

	h.subs[sub.ID] = sub
	subscribersGauge.Inc()

	return sub
}

func (h *Hub) removeLocked(id uuid.UUID) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}

	delete(h.subs, id)
	close(sub.ch)
	subscribersGauge.Dec()
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Close drops every subscriber. Publish and Subscribe stay safe to call.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id := range h.subs {
		h.removeLocked(id)
	}
}

// Serve pushes initial and then every record of sub newer than what the
// client has seen, until the client goes away, ctx is done or sub is dropped.
// sub must be taken before initial is read so that no commit falls between
// them. Serve cancels sub and closes conn.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, sub *Subscription, initial statestore.Record) {
	defer sub.Cancel()
	defer conn.Close()

	l := hzlog.GetLogger(ctx, h.l).With(slog.String("subscriber_id", sub.ID.String()))
	l.Info("subscriber connected")
	defer l.Info("subscriber disconnected")

	// incoming messages are not part of the protocol, the read loop only
	// processes control frames and notices when the peer goes away
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)

		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := send(conn, initial); err != nil {
		l.Warn("cannot send initial state", hzlog.Error(err))
		return
	}
	seen := initial.LastModified

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-sub.C:
			if !ok {
				_ = write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			// queued before initial was read
			if rec.LastModified.Before(seen) {
				continue
			}
			seen = rec.LastModified

			if err := send(conn, rec); err != nil {
				l.Warn("cannot send state", hzlog.Error(err))
				return
			}
		case <-ticker.C:
			if err := write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-ctx.Done():
			return
		}
	}
}

func send(conn *websocket.Conn, rec statestore.Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	return write(conn, websocket.TextMessage, data)
}

func write(conn *websocket.Conn, messageType int, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, data)
}
