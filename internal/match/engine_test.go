package match

import (
	"testing"
	"time"

	"nftflip/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	creatorAddr    = "0xAAAA0000000000000000000000000000000000aa"
	challengerAddr = "0xBBBB0000000000000000000000000000000000bb"
)

// scriptedRng replays a fixed sequence of outcomes so full matches are
// reproducible.
type scriptedRng struct {
	sides []domain.Side
	i     int
}

func (r *scriptedRng) Flip() domain.Side {
	s := r.sides[r.i%len(r.sides)]
	r.i++
	return s
}

func newTestMatch() *domain.Match {
	deadline := time.Now().Add(2 * time.Minute)
	return &domain.Match{
		ID:                "m-1",
		CreatorAddress:    creatorAddr,
		ChallengerAddress: challengerAddr,
		Phase:             domain.PhaseAwaitingDeposit,
		CreatorDeposited:  true,
		DepositDeadline:   &deadline,
		CreatedAt:         time.Now(),
	}
}

func newTestEngine(sides ...domain.Side) *Engine {
	return NewEngine(&scriptedRng{sides: sides}, Config{})
}

func activate(t *testing.T, e *Engine, m *domain.Match) {
	t.Helper()
	_, err := e.Apply(m, ConfirmDeposit{Identity: challengerAddr, Role: domain.RoleChallenger}, time.Now())
	require.NoError(t, err)
	require.Equal(t, domain.PhaseActive, m.Phase)
}

// chooseAndRelease plays the current round as its turn owner.
func chooseAndRelease(t *testing.T, e *Engine, m *domain.Match, side domain.Side) []Event {
	t.Helper()
	who := m.AddressOf(m.Round.CurrentTurn)
	_, err := e.Apply(m, MakeChoice{Identity: who, Choice: side}, time.Now())
	require.NoError(t, err)
	events, err := e.Apply(m, ReleaseFlip{Identity: who, Level: 42}, time.Now())
	require.NoError(t, err)
	return events
}

func TestDepositGateFiresOnce(t *testing.T) {
	e := newTestEngine(domain.SideHeads)
	m := newTestMatch()

	events, err := e.Apply(m, ConfirmDeposit{Identity: challengerAddr, Role: domain.RoleChallenger}, time.Now())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "deposit_confirmed", events[0].EventType())
	assert.Equal(t, "game_started", events[1].EventType())
	assert.Equal(t, domain.PhaseActive, m.Phase)
	assert.True(t, m.CreatorDeposited)
	assert.True(t, m.ChallengerDeposited)
	assert.Equal(t, 1, m.CurrentRound)
	assert.Equal(t, domain.RoleCreator, m.Round.CurrentTurn)

	// duplicate confirm must not re-trigger the Active transition
	events, err = e.Apply(m, ConfirmDeposit{Identity: challengerAddr, Role: domain.RoleChallenger}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestConfirmDepositWrongIdentityIgnored(t *testing.T) {
	e := newTestEngine(domain.SideHeads)
	m := newTestMatch()

	events, err := e.Apply(m, ConfirmDeposit{Identity: "0xdead", Role: domain.RoleChallenger}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.False(t, m.ChallengerDeposited)

	// role/identity mismatch is also silently dropped
	events, err = e.Apply(m, ConfirmDeposit{Identity: challengerAddr, Role: domain.RoleCreator}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.False(t, m.ChallengerDeposited)
}

func TestTurnOwnershipByRound(t *testing.T) {
	e := newTestEngine(domain.SideTails) // chooser always picks heads, so opponent wins
	m := newTestMatch()
	activate(t, e, m)

	wantOwner := map[int]domain.Role{
		1: domain.RoleCreator,
		2: domain.RoleChallenger,
		3: domain.RoleCreator,
		4: domain.RoleChallenger,
	}

	for round := 1; round <= 2; round++ {
		require.Equal(t, round, m.Round.Number)
		require.Equal(t, wantOwner[round], m.Round.CurrentTurn)

		// the off-turn player is rejected and nothing changes
		offTurn := m.AddressOf(other(m.Round.CurrentTurn))
		before := *m
		_, err := e.Apply(m, MakeChoice{Identity: offTurn, Choice: domain.SideHeads}, time.Now())
		require.ErrorIs(t, err, ErrNotYourTurn)
		assert.Equal(t, before, *m)

		chooseAndRelease(t, e, m, domain.SideHeads)
	}

	require.Equal(t, 3, m.Round.Number)
	assert.Equal(t, domain.RoleCreator, m.Round.CurrentTurn)
}

func TestMakeChoiceRejections(t *testing.T) {
	e := newTestEngine(domain.SideHeads)
	m := newTestMatch()

	// wrong phase
	_, err := e.Apply(m, MakeChoice{Identity: creatorAddr, Choice: domain.SideHeads}, time.Now())
	assert.ErrorIs(t, err, ErrWrongPhase)

	activate(t, e, m)

	_, err = e.Apply(m, MakeChoice{Identity: "0xdead", Choice: domain.SideHeads}, time.Now())
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = e.Apply(m, MakeChoice{Identity: creatorAddr, Choice: "edge"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidChoice)

	_, err = e.Apply(m, MakeChoice{Identity: creatorAddr, Choice: domain.SideHeads}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RoundCharging, m.Round.Phase)

	// choosing again lands in the wrong round phase
	_, err = e.Apply(m, MakeChoice{Identity: creatorAddr, Choice: domain.SideTails}, time.Now())
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestChargePowerLastWriteWins(t *testing.T) {
	e := newTestEngine(domain.SideHeads)
	m := newTestMatch()
	activate(t, e, m)

	_, err := e.Apply(m, MakeChoice{Identity: creatorAddr, Choice: domain.SideHeads}, time.Now())
	require.NoError(t, err)

	for _, level := range []int{80, 20, 55} {
		events, err := e.Apply(m, ChargePower{Identity: creatorAddr, Level: level}, time.Now())
		require.NoError(t, err)
		require.Len(t, events, 1)
	}
	assert.Equal(t, 55, m.Round.CreatorPower)

	// the off-turn player cannot touch the charge slot
	events, err := e.Apply(m, ChargePower{Identity: challengerAddr, Level: 99}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, domain.MinPower, m.Round.ChallengerPower)

	// out-of-range levels are clamped
	_, err = e.Apply(m, ChargePower{Identity: creatorAddr, Level: 500}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.MaxPower, m.Round.CreatorPower)
}

func TestMajorityShortCircuit(t *testing.T) {
	// creator wins rounds 1, 2, 3: outcome matches the creator's call
	// in rounds 1/3 and misses the challenger's call in round 2
	e := newTestEngine(domain.SideHeads, domain.SideTails, domain.SideHeads)
	m := newTestMatch()
	activate(t, e, m)

	chooseAndRelease(t, e, m, domain.SideHeads) // r1: creator calls heads, flips heads
	chooseAndRelease(t, e, m, domain.SideHeads) // r2: challenger calls heads, flips tails
	events := chooseAndRelease(t, e, m, domain.SideHeads) // r3: creator calls heads, flips heads

	require.Equal(t, domain.PhaseCompleted, m.Phase)
	require.NotNil(t, m.Winner)
	assert.Equal(t, creatorAddr, *m.Winner)
	assert.Equal(t, 3, m.CreatorScore)
	assert.Equal(t, 0, m.ChallengerScore)
	assert.Equal(t, 3, m.CurrentRound)

	last := events[len(events)-1]
	complete, ok := last.(GameComplete)
	require.True(t, ok)
	assert.Equal(t, creatorAddr, complete.Winner)
}

func TestRoundFiveBreaksTie(t *testing.T) {
	// 2-2 after four rounds, then the decisive server flip reuses the
	// creator's round-1 call (heads) as the creator's side
	e := newTestEngine(
		domain.SideHeads, // r1: creator calls heads -> creator 1-0
		domain.SideHeads, // r2: challenger calls heads -> 1-1
		domain.SideTails, // r3: creator calls heads -> 1-2
		domain.SideTails, // r4: challenger calls heads -> 2-2
		domain.SideHeads, // r5: matches creator reference -> creator 3-2
	)
	m := newTestMatch()
	activate(t, e, m)

	for i := 0; i < 4; i++ {
		chooseAndRelease(t, e, m, domain.SideHeads)
	}

	// round 5 resolved inline while advancing: no player choice existed
	require.Equal(t, domain.PhaseCompleted, m.Phase)
	require.NotNil(t, m.Winner)
	assert.Equal(t, creatorAddr, *m.Winner)
	assert.Equal(t, 3, m.CreatorScore)
	assert.Equal(t, 2, m.ChallengerScore)
	assert.Equal(t, domain.TotalRounds, m.CurrentRound)
}

func TestScoreNeverExceedsRoundsPlayed(t *testing.T) {
	e := newTestEngine(domain.SideHeads, domain.SideTails)
	m := newTestMatch()
	activate(t, e, m)

	for m.Phase == domain.PhaseActive {
		assert.LessOrEqual(t, m.CreatorScore+m.ChallengerScore, m.CurrentRound)
		chooseAndRelease(t, e, m, domain.SideTails)
	}
	assert.LessOrEqual(t, m.CreatorScore+m.ChallengerScore, m.CurrentRound)
}

func TestDeterministicReplay(t *testing.T) {
	run := func() *domain.Match {
		e := newTestEngine(domain.SideHeads, domain.SideTails, domain.SideTails, domain.SideHeads, domain.SideTails)
		m := newTestMatch()
		now := time.Unix(1700000000, 0)
		_, err := e.Apply(m, ConfirmDeposit{Identity: challengerAddr, Role: domain.RoleChallenger}, now)
		require.NoError(t, err)
		for m.Phase == domain.PhaseActive {
			who := m.AddressOf(m.Round.CurrentTurn)
			_, err := e.Apply(m, MakeChoice{Identity: who, Choice: domain.SideHeads}, now)
			require.NoError(t, err)
			_, err = e.Apply(m, ReleaseFlip{Identity: who, Level: 10}, now)
			require.NoError(t, err)
		}
		return m
	}

	a, b := run(), run()
	assert.Equal(t, a.Winner, b.Winner)
	assert.Equal(t, a.CreatorScore, b.CreatorScore)
	assert.Equal(t, a.ChallengerScore, b.ChallengerScore)
	assert.Equal(t, a.CurrentRound, b.CurrentRound)
}

func TestEventsCarryMatchID(t *testing.T) {
	e := newTestEngine(domain.SideHeads, domain.SideTails)
	m := newTestMatch()

	var all []Event
	events, err := e.Apply(m, ConfirmDeposit{Identity: challengerAddr, Role: domain.RoleChallenger}, time.Now())
	require.NoError(t, err)
	all = append(all, events...)
	for m.Phase == domain.PhaseActive {
		who := m.AddressOf(m.Round.CurrentTurn)
		events, err = e.Apply(m, MakeChoice{Identity: who, Choice: domain.SideHeads}, time.Now())
		require.NoError(t, err)
		all = append(all, events...)
		events, err = e.Apply(m, ChargePower{Identity: who, Level: 30}, time.Now())
		require.NoError(t, err)
		all = append(all, events...)
		events, err = e.Apply(m, ReleaseFlip{Identity: who, Level: 60}, time.Now())
		require.NoError(t, err)
		all = append(all, events...)
	}

	require.NotEmpty(t, all)
	for _, ev := range all {
		var id string
		switch v := ev.(type) {
		case DepositConfirmed:
			id = v.MatchID
		case GameStarted:
			id = v.MatchID
		case ChoiceMade:
			id = v.MatchID
		case PowerCharged:
			id = v.MatchID
		case RoundResult:
			id = v.MatchID
		case GameComplete:
			id = v.MatchID
		case MatchAbandoned:
			id = v.MatchID
		default:
			t.Fatalf("unexpected event %T", ev)
		}
		assert.Equal(t, m.ID, id, "event %s", ev.EventType())
	}
}

func TestDepositTimeoutAbandonsMatch(t *testing.T) {
	e := newTestEngine(domain.SideHeads)
	m := newTestMatch() // creator deposited at promotion, challenger pending

	events, err := e.Apply(m, TimeoutDeposit{}, time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "match_abandoned", events[0].EventType())
	assert.Equal(t, domain.PhaseAbandoned, m.Phase)
	assert.Nil(t, m.DepositDeadline)
}

func TestDepositTimeoutStaleAfterActive(t *testing.T) {
	e := newTestEngine(domain.SideHeads)
	m := newTestMatch()
	activate(t, e, m)

	// the timer raced a just-arrived confirm: it must be a no-op
	events, err := e.Apply(m, TimeoutDeposit{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, domain.PhaseActive, m.Phase)
}

func TestChoiceTimeoutAutoChooses(t *testing.T) {
	e := newTestEngine(domain.SideTails, domain.SideHeads)
	m := newTestMatch()
	activate(t, e, m)

	events, err := e.Apply(m, TimeoutChoice{}, time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	choice, ok := events[0].(ChoiceMade)
	require.True(t, ok)
	assert.True(t, choice.Auto)
	assert.Equal(t, domain.RoleCreator, choice.Role)
	assert.Equal(t, domain.RoundCharging, m.Round.Phase)
	require.NotNil(t, m.Round.CreatorChoice)
	assert.Equal(t, domain.SideTails, *m.Round.CreatorChoice)

	// the same player stalls charging as well: flip auto-releases
	events, err = e.Apply(m, TimeoutCharge{}, time.Now())
	require.NoError(t, err)
	result, ok := events[0].(RoundResult)
	require.True(t, ok)
	assert.True(t, result.Auto)
	assert.Equal(t, 2, m.Round.Number)
}

func TestTimeoutsStaleInWrongPhase(t *testing.T) {
	e := newTestEngine(domain.SideHeads)
	m := newTestMatch()
	activate(t, e, m)

	events, err := e.Apply(m, TimeoutCharge{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = e.Apply(m, MakeChoice{Identity: creatorAddr, Choice: domain.SideHeads}, time.Now())
	require.NoError(t, err)

	events, err = e.Apply(m, TimeoutChoice{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, domain.RoundCharging, m.Round.Phase)
}

func TestCompletedMatchRejectsFurtherPlay(t *testing.T) {
	e := newTestEngine(domain.SideHeads, domain.SideTails, domain.SideHeads)
	m := newTestMatch()
	activate(t, e, m)
	for m.Phase == domain.PhaseActive {
		chooseAndRelease(t, e, m, domain.SideHeads)
	}
	require.Equal(t, domain.PhaseCompleted, m.Phase)

	winner := *m.Winner
	scores := [2]int{m.CreatorScore, m.ChallengerScore}

	_, err := e.Apply(m, MakeChoice{Identity: creatorAddr, Choice: domain.SideHeads}, time.Now())
	assert.ErrorIs(t, err, ErrWrongPhase)

	events, err := e.Apply(m, ReleaseFlip{Identity: creatorAddr, Level: 1}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.Equal(t, winner, *m.Winner)
	assert.Equal(t, scores, [2]int{m.CreatorScore, m.ChallengerScore})
}
