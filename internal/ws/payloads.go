package ws

import (
	"encoding/json"

	"nftflip/internal/domain"
)

// Message is the outbound wire envelope.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Envelope is the inbound wire envelope; payloads stay raw until the
// type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// client → server
type RegisterIdentityPayload struct {
	Address string `json:"address"`
}

type JoinRoomPayload struct {
	MatchID string `json:"match_id"`
}

type ConfirmDepositPayload struct {
	MatchID string      `json:"match_id"`
	Role    domain.Role `json:"role"`
}

type MakeChoicePayload struct {
	MatchID string      `json:"match_id"`
	Choice  domain.Side `json:"choice"`
}

type ChargePowerPayload struct {
	MatchID string `json:"match_id"`
	Level   int    `json:"level"`
}

type ReleaseFlipPayload struct {
	MatchID string `json:"match_id"`
	Level   int    `json:"level"`
}

type RequestStatePayload struct {
	MatchID string `json:"match_id"`
}

// server → client
type RoomJoinedPayload struct {
	MatchID     string `json:"match_id"`
	MemberCount int    `json:"member_count"`
}

// StatePayload is the full Match+Round projection. SecondsRemaining is
// recomputed from the armed deadline at send time; clients never run
// their own countdown.
type StatePayload struct {
	Match            *domain.Match `json:"match"`
	SecondsRemaining *int          `json:"seconds_remaining,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
