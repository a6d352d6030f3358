package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/screwyprof/poolmembers/pkg/httpkit"
	"github.com/screwyprof/poolmembers/pkg/viewbus"
	"github.com/screwyprof/poolmembers/web/api"
)

const MembersFeedRoute = http.MethodGet + " " + "/ws/members"

// Feed defaults
const (
	DefaultPingInterval = 30 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultWriteWait    = 10 * time.Second

	maxClientMessage = 512
)

// Sentinel errors
var (
	ErrFeedUnavailable = errors.New("members feed unavailable")
)

// Feed is the source of published views
type Feed interface {
	Latest(ctx context.Context) (viewbus.Latest, error)
	Subscribe(ctx context.Context) (<-chan viewbus.Message, error)
}

// FeedOption configures MembersFeed
type FeedOption func(*MembersFeed)

// WithPingInterval sets how often the server pings the client
func WithPingInterval(d time.Duration) FeedOption {
	return func(h *MembersFeed) { h.pingInterval = d }
}

// WithPongWait sets how long the client may stay silent before it is dropped.
// Must be longer than the ping interval.
func WithPongWait(d time.Duration) FeedOption {
	return func(h *MembersFeed) { h.pongWait = d }
}

// WithWriteWait bounds every frame write
func WithWriteWait(d time.Duration) FeedOption {
	return func(h *MembersFeed) { h.writeWait = d }
}

// WithCheckOrigin replaces the same-origin check of the websocket upgrade
func WithCheckOrigin(check func(r *http.Request) bool) FeedOption {
	return func(h *MembersFeed) { h.upgrader.CheckOrigin = check }
}

// WithFeedLogger sets the logger for connection lifecycle messages
func WithFeedLogger(log *slog.Logger) FeedOption {
	return func(h *MembersFeed) { h.log = log }
}

// MembersFeed streams published views to websocket clients. A client receives the latest
// view on connect, then every newer publication.
type MembersFeed struct {
	feed         Feed
	upgrader     websocket.Upgrader
	log          *slog.Logger
	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
}

func NewMembersFeed(feed Feed, opts ...FeedOption) *MembersFeed {
	h := &MembersFeed{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log:          slog.Default(),
		pingInterval: DefaultPingInterval,
		pongWait:     DefaultPongWait,
		writeWait:    DefaultWriteWait,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *MembersFeed) AddRoutes(m *http.ServeMux) {
	m.HandleFunc(MembersFeedRoute, h.ServeMembers)
}

// ServeMembers upgrades the connection and runs one writer and one pinger next to the
// reader, which only watches for the client going away
func (h *MembersFeed) ServeMembers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before reading the latest view so no publication falls in between
	messages, err := h.feed.Subscribe(ctx)
	if err != nil {
		httpkit.JSONError(api.ServiceUnavailable(fmt.Errorf("%w: %w", ErrFeedUnavailable, err)))(w, r)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		return
	}

	h.log.DebugContext(ctx, "Members feed client connected", slog.String("remote_addr", r.RemoteAddr))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer cancel()
		h.writeMessages(ctx, conn, messages)
	}()
	go func() {
		defer wg.Done()
		h.sendPings(ctx, conn)
	}()
	go func() {
		defer wg.Done()
		// unblocks the reader once the writer is gone
		<-ctx.Done()
		_ = conn.Close()
	}()

	h.readMessages(ctx, conn)
	cancel()
	wg.Wait()

	h.log.DebugContext(ctx, "Members feed client disconnected", slog.String("remote_addr", r.RemoteAddr))
}

// writeMessages sends the latest view, then forwards bus messages newer than what the
// client has seen. When the bus subscription ends the client is told to come back later.
func (h *MembersFeed) writeMessages(ctx context.Context, conn *websocket.Conn, messages <-chan viewbus.Message) {
	var seen uint64

	latest, err := h.feed.Latest(ctx)
	switch {
	case err == nil:
		if !h.write(conn, api.FeedMessage{Type: api.FeedViewLatest, Payload: latest}) {
			return
		}
		seen = latest.Version
	case !errors.Is(err, viewbus.ErrNoView):
		h.log.WarnContext(ctx, "Failed to read latest view", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			h.close(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case msg, ok := <-messages:
			if !ok {
				h.close(conn, websocket.CloseTryAgainLater, "view feed unavailable")
				return
			}
			if msg.Version <= seen {
				continue
			}
			if !h.write(conn, api.FeedMessage{Type: api.FeedViewPublished, Payload: msg}) {
				return
			}
			seen = msg.Version
		}
	}
}

func (h *MembersFeed) write(conn *websocket.Conn, msg api.FeedMessage) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeWait)); err != nil {
		return false
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Debug("Failed to write members feed message", slog.Any("error", err))
		return false
	}
	return true
}

func (h *MembersFeed) close(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(h.writeWait))
}

// sendPings keeps the connection alive; each pong extends the read deadline
func (h *MembersFeed) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				return
			}
		}
	}
}

// readMessages discards client frames until the connection fails or closes
func (h *MembersFeed) readMessages(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.DebugContext(ctx, "Members feed read failed", slog.Any("error", err))
			}
			return
		}
	}
}
