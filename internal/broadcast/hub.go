package broadcast

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"footprint-chart/internal/chart"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
	maxInput   = 64 << 10
)

// Hub maintains active clients and pushes every frame to all of them.
// Frames are MsgPack encoded once and shared.
type Hub struct {
	frames     <-chan chart.Frame
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	n          atomic.Int64
	log        *zap.Logger

	// latest encoded frame, sent to new clients
	last []byte
}

func newHub(frames <-chan chart.Frame, log *zap.Logger) *Hub {
	return &Hub{
		frames:     frames,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) count() int { return int(h.n.Load()) }

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	frames := h.frames
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.n.Store(int64(len(h.clients)))
			if h.last != nil {
				c.trySend(h.last)
			}
			h.log.Info("client connected", zap.String("client", c.id), zap.Int("total", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Info("client disconnected", zap.String("client", c.id), zap.Int("total", len(h.clients)))
			}

		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			// serialize once per frame
			h.last = f.AppendMsgPack(make([]byte, 0, 4096))
			for c := range h.clients {
				if !c.trySend(h.last) {
					h.log.Debug("slow client, frame dropped", zap.String("client", c.id))
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.n.Store(int64(len(h.clients)))
}

// Client is one websocket connection. send carries binary frames and is
// closed by the hub; replies carries text answers to client input.
type Client struct {
	id      string
	hub     *Hub
	ctrl    Controller
	conn    *websocket.Conn
	send    chan []byte
	replies chan []byte
	log     *zap.Logger
}

// trySend never blocks. A slow client skips this frame and catches up on
// the next one. Hub goroutine only.
func (c *Client) trySend(m []byte) bool {
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		id:      uuid.NewString(),
		hub:     s.hub,
		ctrl:    s.ctrl,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		replies: make(chan []byte, sendBuffer),
		log:     s.log,
	}
	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump applies client input to the chart until the connection closes.
// A gesture still open when the client goes away is cancelled.
func (c *Client) readPump() {
	defer func() {
		c.endGesture()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInput)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		reply, err := handleInput(context.Background(), c.ctrl, data)
		if err != nil {
			c.log.Debug("bad client input", zap.String("client", c.id), zap.Error(err))
			reply = errorReply(err)
		}
		if reply != nil {
			select {
			case c.replies <- reply:
			default:
			}
		}
	}
}

func (c *Client) endGesture() {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	err := c.ctrl.Do(ctx, func(ch *chart.Chart) {
		ch.PointerCancel()
		ch.PointerLeave()
	})
	if err != nil {
		c.log.Debug("gesture not cancelled", zap.String("client", c.id), zap.Error(err))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case m, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, m); err != nil {
				return
			}
		case m := <-c.replies:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, m); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
