package livefeed

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
	clientBuffer   = 16
)

// Handler returns an http.Handler that upgrades requests and streams hub
// messages to the subscriber until either side goes away.
func Handler(hub *Hub, allowOrigin func(*http.Request) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r, allowOrigin)
		if err != nil {
			logs.Warn("live feed upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		serve(hub, conn)
	})
}

func serve(hub *Hub, conn *Conn) {
	id := uuid.NewString()
	ch := make(chan Message, clientBuffer)
	if !hub.Register(id, ch) {
		conn.WriteClose(writeWait)
		conn.Close()
		return
	}
	logs.Debug("live feed subscriber connected", "client", id, "remote", conn.RemoteAddr())

	// Reader: only control frames are expected; a read error means the peer left.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxInboundSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		hub.Unregister(id)
		conn.Close()
		logs.Debug("live feed subscriber disconnected", "client", id)
	}()

	hello := Message{Type: MessageTypeHello, Data: map[string]string{"client_id": id}}
	if b, err := hello.Marshal(); err == nil {
		if err := conn.WriteRaw(b, writeWait); err != nil {
			return
		}
	}

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				conn.WriteClose(writeWait)
				return
			}
			b, err := msg.Marshal()
			if err != nil {
				logs.Warn("live feed marshal failed", "type", msg.Type, "error", err)
				continue
			}
			if err := conn.WriteRaw(b, writeWait); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WritePing(writeWait); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
