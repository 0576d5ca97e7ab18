package match

import "nftflip/internal/domain"

// Event is something the engine produced that observers must learn
// about. The room maps events onto outbound websocket messages in the
// order the engine produced them. Every payload names its match so an
// event is self-describing once it leaves the room.
type Event interface {
	EventType() string
}

type DepositConfirmed struct {
	MatchID       string      `json:"match_id"`
	Role          domain.Role `json:"role"`
	BothDeposited bool        `json:"both_deposited"`
}

type GameStarted struct {
	MatchID     string      `json:"match_id"`
	Creator     string      `json:"creator"`
	Challenger  string      `json:"challenger"`
	CurrentTurn domain.Role `json:"current_turn"`
}

type ChoiceMade struct {
	MatchID string      `json:"match_id"`
	Role    domain.Role `json:"role"`
	Choice  domain.Side `json:"choice"`
	Auto    bool        `json:"auto"`
}

type PowerCharged struct {
	MatchID string      `json:"match_id"`
	Role    domain.Role `json:"role"`
	Level   int         `json:"level"`
}

type RoundResult struct {
	MatchID         string      `json:"match_id"`
	Result          domain.Side `json:"result"`
	RoundWinner     string      `json:"round_winner"`
	WinnerRole      domain.Role `json:"winner_role"`
	CreatorScore    int         `json:"creator_score"`
	ChallengerScore int         `json:"challenger_score"`
	CurrentRound    int         `json:"current_round"`
	Auto            bool        `json:"auto"`
}

type GameComplete struct {
	MatchID         string `json:"match_id"`
	Winner          string `json:"winner"`
	CreatorScore    int    `json:"creator_score"`
	ChallengerScore int    `json:"challenger_score"`
}

type MatchAbandoned struct {
	MatchID string `json:"match_id"`
	Reason  string `json:"reason"`
}

func (DepositConfirmed) EventType() string { return "deposit_confirmed" }
func (GameStarted) EventType() string      { return "game_started" }
func (ChoiceMade) EventType() string       { return "choice_made" }
func (PowerCharged) EventType() string     { return "power_charged" }
func (RoundResult) EventType() string      { return "round_result" }
func (GameComplete) EventType() string     { return "game_complete" }
func (MatchAbandoned) EventType() string   { return "match_abandoned" }
