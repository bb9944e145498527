package hub

import "context"

// Message is one frame pushed to a client.
type Message struct {
	Event string `json:"event"`
	AckID string `json:"ackId,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Conn is a live, authenticated client connection.
// Emit must not block on the network; a slow client is an error, not a stall.
type Conn interface {
	ID() string
	Emit(msg Message) error
}

// Status is the presence a user shows to friends.
type Status string

const (
	StatusOnline    Status = "online"
	StatusAway      Status = "away"
	StatusBusy      Status = "busy"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

// Valid reports whether a client may select s.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusInvisible:
		return true
	}
	return false
}

// Visible is the status friends observe; invisible users look offline.
func (s Status) Visible() Status {
	if s == StatusInvisible {
		return StatusOffline
	}
	return s
}

// Snapshot is the durable relationship state a bucket is hydrated from.
type Snapshot struct {
	Friends  []uint
	Incoming []uint
	Outgoing []uint
	Blocked  []uint
}

// Hydrator loads a user's relationship snapshot.
type Hydrator interface {
	Hydrate(ctx context.Context, userID uint) (Snapshot, error)
}

// HydratorFunc adapts a function to Hydrator.
type HydratorFunc func(ctx context.Context, userID uint) (Snapshot, error)

func (f HydratorFunc) Hydrate(ctx context.Context, userID uint) (Snapshot, error) {
	return f(ctx, userID)
}
