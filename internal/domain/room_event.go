package domain

import "time"

// RoomEvent is a durable copy of an event broadcast to a match room.
// Recent events are replayed to a connection when it joins the room.
type RoomEvent struct {
	ID        int64     `json:"id"`
	MatchID   string    `json:"match_id"`
	Type      string    `json:"type"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
