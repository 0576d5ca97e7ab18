package domain

import "time"

// PayoutKind - what the escrow collaborator is asked to do
type PayoutKind string

const (
	PayoutRelease PayoutKind = "release" // pay the winner
	PayoutRefund  PayoutKind = "refund"  // refund both sides
)

// PayoutStatus - settlement state of an escrow instruction
type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutSettled PayoutStatus = "settled"
)

// Payout is a durable escrow instruction. A completed match stays
// completed even when the escrow call fails; the pending row is retried
// by the payout worker, never by re-running match logic.
type Payout struct {
	ID            int64        `json:"id"`
	MatchID       string       `json:"match_id"`
	Kind          PayoutKind   `json:"kind"`
	WinnerAddress *string      `json:"winner_address,omitempty"`
	Status        PayoutStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	LastError     *string      `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	SettledAt     *time.Time   `json:"settled_at,omitempty"`
}
