package transport

import (
	"net/http"
	"sync"

	applog "beatsketch/internal/log"

	"github.com/gorilla/websocket"
)

// WebSocketTransport broadcasts every payload as JSON to all connected
// WebSocket clients. It is an http.Handler, so it can be mounted on an
// existing router, or it can run its own server (NewWebSocketTransport).
type WebSocketTransport struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	server    *http.Server
}

// NewWebSocketHub creates a transport that serves clients through ServeHTTP.
func NewWebSocketHub() *WebSocketTransport {
	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // progress events are public
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, 256),
		done:      make(chan struct{}),
	}
	go wst.handleBroadcasts()
	return wst
}

// NewWebSocketTransport creates a hub and serves it on addr at /ws.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := NewWebSocketHub()

	mux := http.NewServeMux()
	mux.Handle("/ws", wst)
	wst.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		applog.Infof("WebSocketTransport: Starting WebSocket server on %s", addr)
		if err := wst.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	return wst
}

// ServeHTTP upgrades the connection and registers the client.
func (wst *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Debugf("WebSocketTransport: Client connected, total: %d", total)

	// Clients only listen; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	if ok {
		conn.Close()
		applog.Debugf("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				if err := client.WriteJSON(data); err != nil {
					applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		case <-wst.done:
			return
		}
	}
}

// Send queues data for broadcast. When the queue is full the message is
// dropped; progress events are best effort.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case wst.broadcast <- data:
	case <-wst.done:
	default:
		applog.Debugf("WebSocketTransport: Queue full, dropping message")
	}
	return nil
}

// Close disconnects every client and stops the server, if any.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Debugf("WebSocketTransport: Closing")
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
