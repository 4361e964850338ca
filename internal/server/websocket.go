package server

import (
	"net/http"
	"net/netip"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// writeWait bounds a single WebSocket write.
const writeWait = 5 * time.Second

// upgrader accepts same-origin, loopback and private-network origins.
var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		log.Warn().Str("origin", origin).Msg("rejected websocket connection with malformed origin")
		return false
	}
	if u.Host == r.Host {
		return true
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil && (addr.IsLoopback() || addr.IsPrivate()) {
		return true
	}

	log.Warn().Str("origin", origin).Msg("rejected websocket connection")
	return false
}

// JSONWriter sends one JSON message to a client.
type JSONWriter interface {
	WriteJSON(v any) error
}

// Conn is a WebSocket connection that is safe for concurrent writers.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// UpgradeConnection upgrades an HTTP connection to WebSocket.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

// WriteJSON sends v as one text message.
func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// ReadJSON reads the next message into v. Only one goroutine may read.
func (c *Conn) ReadJSON(v any) error {
	return c.ws.ReadJSON(v)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
