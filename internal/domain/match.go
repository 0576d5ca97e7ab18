package domain

import "time"

// Phase - top-level match status
type Phase string

const (
	PhaseAwaitingChallenger Phase = "awaiting_challenger"
	PhaseAwaitingDeposit    Phase = "awaiting_deposit"
	PhaseActive             Phase = "active"
	PhaseCompleted          Phase = "completed"
	PhaseAbandoned          Phase = "abandoned"
)

// Role - which seat a participant occupies
type Role string

const (
	RoleCreator    Role = "creator"
	RoleChallenger Role = "challenger"
)

// Side - a coin face
type Side string

const (
	SideHeads Side = "heads"
	SideTails Side = "tails"
)

// RoundPhase - sub-state of the current round
type RoundPhase string

const (
	RoundChoosing  RoundPhase = "choosing"
	RoundCharging  RoundPhase = "charging"
	RoundResolving RoundPhase = "resolving"
	RoundResult    RoundPhase = "result"
)

const (
	TotalRounds  = 5
	MajorityWins = 3
	MinPower     = 1
	MaxPower     = 100
)

// Round is the ephemeral per-round state, reset each round.
// Round 5 has no player choice: the server resolves it directly.
type Round struct {
	Number           int        `json:"number"`
	Phase            RoundPhase `json:"phase"`
	CurrentTurn      Role       `json:"current_turn,omitempty"` // empty when no choice is awaited
	CreatorChoice    *Side      `json:"creator_choice,omitempty"`
	ChallengerChoice *Side      `json:"challenger_choice,omitempty"`
	CreatorPower     int        `json:"creator_power"`
	ChallengerPower  int        `json:"challenger_power"`
	Deadline         *time.Time `json:"deadline,omitempty"`
}

// Match is the unit of play: one coin-flip contest between a creator
// and a challenger, staked via an external escrow.
type Match struct {
	ID                  string     `json:"id"`
	OfferID             *string    `json:"offer_id,omitempty"`
	CreatorAddress      string     `json:"creator_address"`
	ChallengerAddress   string     `json:"challenger_address,omitempty"`
	NFTContract         string     `json:"nft_contract"`
	NFTTokenID          string     `json:"nft_token_id"`
	PriceWei            string     `json:"price_wei"`
	Phase               Phase      `json:"phase"`
	CurrentRound        int        `json:"current_round"`
	CreatorScore        int        `json:"creator_score"`
	ChallengerScore     int        `json:"challenger_score"`
	CreatorDeposited    bool       `json:"creator_deposited"`
	ChallengerDeposited bool       `json:"challenger_deposited"`
	DepositDeadline     *time.Time `json:"deposit_deadline,omitempty"`
	Winner              *string    `json:"winner,omitempty"`
	// CreatorReference is the creator's round-1 choice, reused as the
	// creator's side for the decisive round-5 auto-flip.
	CreatorReference *Side     `json:"creator_reference,omitempty"`
	Round            Round     `json:"round"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RoleOf returns the role bound to an address.
func (m *Match) RoleOf(address string) (Role, bool) {
	switch address {
	case "":
		return "", false
	case m.CreatorAddress:
		return RoleCreator, true
	case m.ChallengerAddress:
		return RoleChallenger, true
	}
	return "", false
}

// AddressOf returns the address occupying a role.
func (m *Match) AddressOf(role Role) string {
	if role == RoleCreator {
		return m.CreatorAddress
	}
	return m.ChallengerAddress
}

// Terminal reports whether the match can no longer change.
func (m *Match) Terminal() bool {
	return m.Phase == PhaseCompleted || m.Phase == PhaseAbandoned
}

// TurnOwner returns who chooses in a given round. Rounds 1 and 3 belong
// to the creator, 2 and 4 to the challenger. Round 5 is resolved by the
// server with no player choice, so there is no owner.
func TurnOwner(round int) (Role, bool) {
	switch round {
	case 1, 3:
		return RoleCreator, true
	case 2, 4:
		return RoleChallenger, true
	}
	return "", false
}

// ValidSide reports whether s is a playable coin face.
func ValidSide(s Side) bool {
	return s == SideHeads || s == SideTails
}

// Opposite returns the other coin face.
func Opposite(s Side) Side {
	if s == SideHeads {
		return SideTails
	}
	return SideHeads
}
