package observer

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
)

// Version is the observer feed version (separate from the session protocol).
const Version = "0.1"

const (
	FormatSnapshot = "snapshot"
	FormatGeoJSON  = "geojson"
)

// SubscribeMsg is the first message a viewer sends; it may be re-sent to
// switch formats.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Format          string `json:"format,omitempty"`
}

type viewer struct {
	id     string
	out    chan []byte
	format atomic.Value // string
}

// Hub fans published snapshots out to websocket viewers. Slow viewers
// lose frames rather than stalling the session.
type Hub struct {
	log logrus.FieldLogger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	viewers map[string]*viewer
	latest  protocol.Snapshot
	grid    *mathx.Grid
	hasLast bool
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		log:     log,
		viewers: map[string]*viewer{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Publish implements session.SnapshotSink.
func (h *Hub) Publish(snap protocol.Snapshot, grid *mathx.Grid) {
	h.mu.Lock()
	h.latest, h.grid, h.hasLast = snap, grid, true
	viewers := make([]*viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()

	encoded := map[string][]byte{}
	for _, v := range viewers {
		format := v.format.Load().(string)
		b, ok := encoded[format]
		if !ok {
			var err error
			b, err = encode(format, snap, grid)
			if err != nil {
				h.log.WithError(err).Warn("observer encode")
				continue
			}
			encoded[format] = b
		}
		select {
		case v.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

func encode(format string, snap protocol.Snapshot, grid *mathx.Grid) ([]byte, error) {
	if format == FormatGeoJSON {
		return json.Marshal(FeatureCollection(snap, grid))
	}
	return protocol.Encode(snap)
}

// LatestHandler serves the last published snapshot as GeoJSON.
func (h *Hub) LatestHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h.mu.Lock()
		snap, grid, ok := h.latest, h.grid, h.hasLast
		h.mu.Unlock()
		if !ok {
			http.Error(rw, "no snapshot yet", http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "application/geo+json")
		_ = json.NewEncoder(rw).Encode(FeatureCollection(snap, grid))
	}
}

func (h *Hub) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		v := &viewer{id: fmt.Sprintf("O%d", h.nextID.Add(1)), out: make(chan []byte, 8)}
		v.format.Store(sub.Format)
		h.mu.Lock()
		h.viewers[v.id] = v
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.viewers, v.id)
			h.mu.Unlock()
		}()
		h.log.WithFields(logrus.Fields{"viewer": v.id, "format": sub.Format}).Debug("observer joined")

		done := make(chan struct{})
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-done:
					writeErr <- nil
					return
				case b := <-v.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				v.format.Store(sub.Format)
			}
		}

		close(done)
		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (SubscribeMsg, bool) {
	var sub SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != Version {
		return sub, false
	}
	switch sub.Format {
	case "":
		sub.Format = FormatSnapshot
	case FormatSnapshot, FormatGeoJSON:
	default:
		return sub, false
	}
	return sub, true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
