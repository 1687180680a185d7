package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"lightshow/internal/log"
)

var wsLog = log.New("WebSocketDriver")

// WebSocketDriver is a light simulator: every pin write is pushed as a
// PinState JSON message to the browsers connected on /ws. New clients first
// receive the current state of every pin written so far.
type WebSocketDriver struct {
	pwmRange  int
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	pins      map[int]PinState
	broadcast chan PinState
	server    *http.Server
	listener  net.Listener
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketDriver starts the simulator server on addr.
func NewWebSocketDriver(addr string, pwmRange int) (*WebSocketDriver, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	d := &WebSocketDriver{
		pwmRange: pwmRange,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // The simulator is a local debugging aid.
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		pins:      make(map[int]PinState),
		broadcast: make(chan PinState, 256),
		listener:  ln,
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.handleWebSocket)
	d.server = &http.Server{Handler: mux}

	go func() {
		wsLog.Infof("serving light simulator on %s", ln.Addr())
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wsLog.Errorf("server error: %v", err)
		}
	}()
	go d.handleBroadcasts()

	return d, nil
}

// Addr returns the listening address.
func (d *WebSocketDriver) Addr() string {
	return d.listener.Addr().String()
}

// handleWebSocket upgrades HTTP connections to WebSocket and sends the
// current pin snapshot.
func (d *WebSocketDriver) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLog.Warnf("upgrade error: %v", err)
		return
	}

	d.clientsMu.Lock()
	for _, p := range d.pins {
		if err := conn.WriteJSON(p); err != nil {
			d.clientsMu.Unlock()
			conn.Close()
			return
		}
	}
	d.clients[conn] = true
	total := len(d.clients)
	d.clientsMu.Unlock()
	wsLog.Infof("client connected, total: %d", total)

	// Handle disconnect
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				d.clientsMu.Lock()
				delete(d.clients, conn)
				total := len(d.clients)
				d.clientsMu.Unlock()
				conn.Close()
				wsLog.Infof("client disconnected, total: %d", total)
				return
			}
		}
	}()
}

// handleBroadcasts sends queued pin states to all connected clients.
func (d *WebSocketDriver) handleBroadcasts() {
	for {
		select {
		case p := <-d.broadcast:
			d.clientsMu.Lock()
			d.pins[p.Pin] = p
			for client := range d.clients {
				if err := client.WriteJSON(p); err != nil {
					wsLog.Debugf("error sending to client: %v", err)
					client.Close()
					delete(d.clients, client)
				}
			}
			d.clientsMu.Unlock()
		case <-d.done:
			return
		}
	}
}

func (d *WebSocketDriver) send(p PinState) {
	select {
	case d.broadcast <- p:
	default:
		// Channel full, drop message
	}
}

// DigitalWrite publishes an on/off pin state.
func (d *WebSocketDriver) DigitalWrite(pin, value int) error {
	d.send(PinState{Pin: pin, Value: value, Max: 1})
	return nil
}

// PWMWrite publishes a dimmed pin state.
func (d *WebSocketDriver) PWMWrite(pin, value int) error {
	d.send(PinState{Pin: pin, Value: value, Max: d.pwmRange, PWM: true})
	return nil
}

// Close shuts down the simulator server.
func (d *WebSocketDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		wsLog.Infof("closing server")
		close(d.done)

		d.clientsMu.Lock()
		for client := range d.clients {
			client.Close()
		}
		d.clients = make(map[*websocket.Conn]bool)
		d.clientsMu.Unlock()

		err = d.server.Close()
	})
	return err
}

// Ensure WebSocketDriver satisfies the interface
var _ PinDriver = (*WebSocketDriver)(nil)
