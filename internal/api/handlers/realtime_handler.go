package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/realtime"
	"github.com/yoockh/vaihub/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// Subscriber is the read side of the change feed.
type Subscriber interface {
	Subscribe(ctx context.Context, table string) (realtime.Stream, error)
}

type RealtimeHandler struct {
	feed     Subscriber
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewRealtimeHandler(feed Subscriber, log *logrus.Logger, allowedOrigins []string) *RealtimeHandler {
	return &RealtimeHandler{
		feed: feed,
		log:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := map[string]struct{}{}
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) write(messageType int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteMessage(messageType, b)
}

// Messages streams chat INSERT/DELETE events to the client. Events published
// while the client is disconnected are not replayed.
func (h *RealtimeHandler) Messages(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.feed.Subscribe(ctx, "messages")
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, "RealtimeHandler.Messages", "realtime feed unavailable", err))
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}

	// reader: only control frames are expected; a read error ends the stream
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	// writer: feed -> WS
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := wc.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				h.log.WithError(err).Warn("realtime: marshal event")
				continue
			}
			if err := wc.write(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
