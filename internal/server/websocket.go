package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gesturecam/internal/config"
	"gesturecam/internal/state"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

// stateMessage はWebSocketで送る状態
type stateMessage struct {
	Type       string        `json:"type"`
	Domain     config.Domain `json:"domain"`
	Count      *int          `json:"count,omitempty"`
	Status     string        `json:"status,omitempty"`
	Generation uint64        `json:"generation"`
}

func newStateMessage(snap state.Snapshot) stateMessage {
	msg := stateMessage{
		Type:       "state",
		Domain:     snap.State.Domain,
		Generation: snap.Generation,
	}
	if snap.State.Domain == config.DomainFace {
		msg.Status = string(snap.State.Face)
	} else {
		count := snap.State.Count
		msg.Count = &count
	}
	return msg
}

// Hub は状態の変化をWebSocketクライアントに配る
type Hub struct {
	upgrader websocket.Upgrader
	cell     *state.Cell
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
	closed  bool

	changes chan state.Snapshot
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewHub は新しいHubを作成して配信を開始する
func NewHub(cell *state.Cell, logger zerolog.Logger) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cell:    cell,
		logger:  logger.With().Str("component", "websocket").Logger(),
		clients: make(map[*websocket.Conn]*sync.Mutex),
		changes: make(chan state.Snapshot, 1),
		stop:    make(chan struct{}),
	}

	h.wg.Add(1)
	go h.broadcast()
	return h
}

// Notify は状態の変化を配信待ちにする（ブロックしない）
func (h *Hub) Notify(snap state.Snapshot) {
	select {
	case h.changes <- snap:
		return
	default:
	}
	select {
	case <-h.changes:
	default:
	}
	select {
	case h.changes <- snap:
	default:
	}
}

// ServeHTTP は接続をWebSocketにアップグレードする
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := &sync.Mutex{}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[conn] = writeMu
	h.mu.Unlock()

	// 接続直後に現在の状態を送る
	payload, _ := json.Marshal(newStateMessage(h.cell.Snapshot()))
	if err := h.writeMessage(conn, writeMu, websocket.TextMessage, payload); err != nil {
		h.removeClient(conn)
		return
	}

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := h.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer h.removeClient(conn)

		// クライアントからのメッセージは読み捨てる
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) broadcast() {
	defer h.wg.Done()
	for {
		select {
		case <-h.stop:
			return
		case snap := <-h.changes:
			payload, err := json.Marshal(newStateMessage(snap))
			if err != nil {
				continue
			}

			var stale []*websocket.Conn
			h.mu.Lock()
			for conn, writeMu := range h.clients {
				if err := h.writeMessage(conn, writeMu, websocket.TextMessage, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			h.mu.Unlock()

			for _, conn := range stale {
				h.removeClient(conn)
			}
		}
	}
}

func (h *Hub) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// Clients は接続中のクライアント数を返す
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close は配信を止めて全クライアントを切断する
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.stop)
		h.wg.Wait()

		h.mu.Lock()
		h.closed = true
		conns := make([]*websocket.Conn, 0, len(h.clients))
		for conn, writeMu := range h.clients {
			writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(time.Second))
			writeMu.Unlock()
			conns = append(conns, conn)
		}
		h.clients = make(map[*websocket.Conn]*sync.Mutex)
		h.mu.Unlock()

		for _, conn := range conns {
			_ = conn.Close()
		}
	})
}
