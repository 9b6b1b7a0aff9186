package dispatch

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/trip-tracking/internal/events"
)

// WSSender serializes writes onto one websocket connection. Both the
// connection's own handler and the relay fan-out goroutine emit through it,
// and gorilla/websocket allows only one concurrent writer. The write deadline
// is what keeps a stalled client from blocking the fan-out loop.
type WSSender struct {
	conn     *websocket.Conn
	deadline time.Duration
	mu       sync.Mutex
}

func NewWSSender(conn *websocket.Conn, deadline time.Duration) *WSSender {
	return &WSSender{conn: conn, deadline: deadline}
}

func (s *WSSender) Send(event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deadline > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.deadline))
	}
	return s.conn.WriteJSON(outbound{Event: event, Data: data})
}

// outbound mirrors events.Envelope but keeps Data unmarshaled so WriteJSON
// encodes it in one pass.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

var _ events.Sender = (*WSSender)(nil)
