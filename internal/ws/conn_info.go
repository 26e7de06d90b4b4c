package ws

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ConnInfo identifies one websocket subscription for logging and the
// connection events published on the bus.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// newConnID mints a random connection id, independent of any request or
// trace id so reconnects are distinguishable.
func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
