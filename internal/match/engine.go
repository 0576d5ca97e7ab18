package match

import (
	"errors"
	"fmt"
	"time"

	"nftflip/internal/domain"
)

// Rejection errors surfaced to the offending connection only. A
// rejected action never mutates state and never broadcasts.
var (
	ErrWrongPhase     = errors.New("action not valid in current phase")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrNotParticipant = errors.New("not a participant of this match")
	ErrInvalidChoice  = errors.New("choice must be heads or tails")
	ErrAlreadyChosen  = errors.New("choice already made this round")
	ErrUnknownMatch   = errors.New("unknown match")
)

// Config carries the engine's timing knobs.
type Config struct {
	ChoiceTimeout time.Duration
	ChargeTimeout time.Duration
}

// Engine applies actions to a match and yields events. It holds no
// per-match state itself: callers own serialization (one writer per
// match) and the engine is pure up to the injected Rng.
type Engine struct {
	rng Rng
	cfg Config
}

func NewEngine(rng Rng, cfg Config) *Engine {
	if cfg.ChoiceTimeout <= 0 {
		cfg.ChoiceTimeout = 30 * time.Second
	}
	if cfg.ChargeTimeout <= 0 {
		cfg.ChargeTimeout = 10 * time.Second
	}
	return &Engine{rng: rng, cfg: cfg}
}

// Apply validates an action against the match and applies it. It
// returns the events the transition produced. A (nil, nil) return is a
// deliberate no-op: duplicate or stale actions are harmless by design.
func (e *Engine) Apply(m *domain.Match, act Action, now time.Time) ([]Event, error) {
	var events []Event
	var err error

	switch a := act.(type) {
	case ConfirmDeposit:
		events = e.confirmDeposit(m, a, now)
	case MakeChoice:
		events, err = e.makeChoice(m, a.Identity, a.Choice, now, false)
	case ChargePower:
		events = e.chargePower(m, a.Identity, a.Level)
	case ReleaseFlip:
		events = e.releaseFlip(m, a.Identity, a.Level, now)
	case TimeoutDeposit:
		events = e.timeoutDeposit(m)
	case TimeoutChoice:
		events = e.timeoutChoice(m, now)
	case TimeoutCharge:
		events = e.timeoutCharge(m, now)
	default:
		err = fmt.Errorf("unknown action %T", act)
	}

	if err == nil && len(events) > 0 {
		m.UpdatedAt = now
	}
	return events, err
}

func (e *Engine) confirmDeposit(m *domain.Match, a ConfirmDeposit, now time.Time) []Event {
	if m.Phase != domain.PhaseAwaitingDeposit {
		return nil
	}
	role, ok := m.RoleOf(a.Identity)
	if !ok || role != a.Role {
		return nil
	}

	// duplicate confirms are no-ops: the Active transition fires once
	switch role {
	case domain.RoleCreator:
		if m.CreatorDeposited {
			return nil
		}
		m.CreatorDeposited = true
	case domain.RoleChallenger:
		if m.ChallengerDeposited {
			return nil
		}
		m.ChallengerDeposited = true
	}

	both := m.CreatorDeposited && m.ChallengerDeposited
	events := []Event{DepositConfirmed{MatchID: m.ID, Role: role, BothDeposited: both}}

	if both {
		m.Phase = domain.PhaseActive
		m.DepositDeadline = nil
		e.armRound(m, 1, now)
		events = append(events, GameStarted{
			MatchID:     m.ID,
			Creator:     m.CreatorAddress,
			Challenger:  m.ChallengerAddress,
			CurrentTurn: m.Round.CurrentTurn,
		})
	}
	return events
}

func (e *Engine) makeChoice(m *domain.Match, identity string, choice domain.Side, now time.Time, auto bool) ([]Event, error) {
	if m.Phase != domain.PhaseActive || m.Round.Phase != domain.RoundChoosing {
		return nil, ErrWrongPhase
	}
	role, ok := m.RoleOf(identity)
	if !ok {
		return nil, ErrNotParticipant
	}
	if role != m.Round.CurrentTurn {
		return nil, ErrNotYourTurn
	}
	if !domain.ValidSide(choice) {
		return nil, ErrInvalidChoice
	}
	if choiceOf(m, role) != nil {
		return nil, ErrAlreadyChosen
	}

	setChoice(m, role, choice)
	if role == domain.RoleCreator && m.Round.Number == 1 {
		ref := choice
		m.CreatorReference = &ref
	}

	m.Round.Phase = domain.RoundCharging
	deadline := now.Add(e.cfg.ChargeTimeout)
	m.Round.Deadline = &deadline

	return []Event{ChoiceMade{MatchID: m.ID, Role: role, Choice: choice, Auto: auto}}, nil
}

func (e *Engine) chargePower(m *domain.Match, identity string, level int) []Event {
	if m.Phase != domain.PhaseActive || m.Round.Phase != domain.RoundCharging {
		return nil
	}
	role, ok := m.RoleOf(identity)
	if !ok || role != m.Round.CurrentTurn {
		return nil
	}

	setPower(m, role, clampPower(level))
	return []Event{PowerCharged{MatchID: m.ID, Role: role, Level: powerOf(m, role)}}
}

func (e *Engine) releaseFlip(m *domain.Match, identity string, level int, now time.Time) []Event {
	if m.Phase != domain.PhaseActive || m.Round.Phase != domain.RoundCharging {
		return nil
	}
	role, ok := m.RoleOf(identity)
	if !ok || role != m.Round.CurrentTurn {
		return nil
	}

	setPower(m, role, clampPower(level))
	return e.resolveRound(m, now, false)
}

func (e *Engine) timeoutDeposit(m *domain.Match) []Event {
	if m.Phase != domain.PhaseAwaitingDeposit {
		return nil
	}
	if m.CreatorDeposited && m.ChallengerDeposited {
		return nil
	}
	m.Phase = domain.PhaseAbandoned
	m.DepositDeadline = nil
	return []Event{MatchAbandoned{MatchID: m.ID, Reason: "deposit_timeout"}}
}

func (e *Engine) timeoutChoice(m *domain.Match, now time.Time) []Event {
	if m.Phase != domain.PhaseActive || m.Round.Phase != domain.RoundChoosing {
		return nil
	}
	// auto-assign a random side to the stalled player and proceed as
	// if chosen
	events, err := e.makeChoice(m, m.AddressOf(m.Round.CurrentTurn), e.rng.Flip(), now, true)
	if err != nil {
		return nil
	}
	return events
}

func (e *Engine) timeoutCharge(m *domain.Match, now time.Time) []Event {
	if m.Phase != domain.PhaseActive || m.Round.Phase != domain.RoundCharging {
		return nil
	}
	return e.resolveRound(m, now, true)
}

// resolveRound draws the flip outcome and scores the round. In rounds
// 1-4 the turn owner's recorded choice is compared against the outcome;
// a match means the chooser won the round, otherwise the opponent did.
// Round 5 compares the creator's reference side (their round-1 choice),
// so every round is decisive and a tie after round 5 is impossible.
func (e *Engine) resolveRound(m *domain.Match, now time.Time, auto bool) []Event {
	m.Round.Phase = domain.RoundResolving
	m.Round.Deadline = nil

	outcome := e.rng.Flip()

	var winner domain.Role
	if chooser, ok := domain.TurnOwner(m.Round.Number); ok {
		choice := choiceOf(m, chooser)
		if choice != nil && *choice == outcome {
			winner = chooser
		} else {
			winner = other(chooser)
		}
	} else {
		ref := m.CreatorReference
		if ref != nil && *ref == outcome {
			winner = domain.RoleCreator
		} else {
			winner = domain.RoleChallenger
		}
		auto = true
	}

	if winner == domain.RoleCreator {
		m.CreatorScore++
	} else {
		m.ChallengerScore++
	}
	m.Round.Phase = domain.RoundResult

	events := []Event{RoundResult{
		MatchID:         m.ID,
		Result:          outcome,
		RoundWinner:     m.AddressOf(winner),
		WinnerRole:      winner,
		CreatorScore:    m.CreatorScore,
		ChallengerScore: m.ChallengerScore,
		CurrentRound:    m.Round.Number,
		Auto:            auto,
	}}

	if m.CreatorScore >= domain.MajorityWins || m.ChallengerScore >= domain.MajorityWins || m.Round.Number >= domain.TotalRounds {
		return append(events, e.complete(m)...)
	}

	next := m.Round.Number + 1
	if next == domain.TotalRounds {
		// round 5 is server-resolved with no player choice
		m.CurrentRound = next
		m.Round = domain.Round{Number: next, Phase: domain.RoundResolving,
			CreatorPower: domain.MinPower, ChallengerPower: domain.MinPower}
		return append(events, e.resolveRound(m, now, true)...)
	}

	e.armRound(m, next, now)
	return events
}

func (e *Engine) complete(m *domain.Match) []Event {
	m.Phase = domain.PhaseCompleted
	m.Round.Deadline = nil

	winner := m.CreatorAddress
	if m.ChallengerScore > m.CreatorScore {
		winner = m.ChallengerAddress
	}
	m.Winner = &winner

	return []Event{GameComplete{
		MatchID:         m.ID,
		Winner:          winner,
		CreatorScore:    m.CreatorScore,
		ChallengerScore: m.ChallengerScore,
	}}
}

func (e *Engine) armRound(m *domain.Match, number int, now time.Time) {
	owner, _ := domain.TurnOwner(number)
	deadline := now.Add(e.cfg.ChoiceTimeout)
	m.CurrentRound = number
	m.Round = domain.Round{
		Number:          number,
		Phase:           domain.RoundChoosing,
		CurrentTurn:     owner,
		CreatorPower:    domain.MinPower,
		ChallengerPower: domain.MinPower,
		Deadline:        &deadline,
	}
}

func other(r domain.Role) domain.Role {
	if r == domain.RoleCreator {
		return domain.RoleChallenger
	}
	return domain.RoleCreator
}

func choiceOf(m *domain.Match, role domain.Role) *domain.Side {
	if role == domain.RoleCreator {
		return m.Round.CreatorChoice
	}
	return m.Round.ChallengerChoice
}

func setChoice(m *domain.Match, role domain.Role, s domain.Side) {
	if role == domain.RoleCreator {
		m.Round.CreatorChoice = &s
	} else {
		m.Round.ChallengerChoice = &s
	}
}

func powerOf(m *domain.Match, role domain.Role) int {
	if role == domain.RoleCreator {
		return m.Round.CreatorPower
	}
	return m.Round.ChallengerPower
}

func setPower(m *domain.Match, role domain.Role, level int) {
	if role == domain.RoleCreator {
		m.Round.CreatorPower = level
	} else {
		m.Round.ChallengerPower = level
	}
}

func clampPower(level int) int {
	if level < domain.MinPower {
		return domain.MinPower
	}
	if level > domain.MaxPower {
		return domain.MaxPower
	}
	return level
}
