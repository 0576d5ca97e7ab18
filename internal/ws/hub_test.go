package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"nftflip/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	creatorAddr    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	challengerAddr = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// memMatchStore keeps matches in memory; Save is called from room
// goroutines so it is mutex-guarded.
type memMatchStore struct {
	mu      sync.Mutex
	matches map[string]*domain.Match
}

func newMemMatchStore(ms ...*domain.Match) *memMatchStore {
	s := &memMatchStore{matches: make(map[string]*domain.Match)}
	for _, m := range ms {
		s.matches[m.ID] = m
	}
	return s
}

func (s *memMatchStore) GetByID(_ context.Context, id string) (*domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[id], nil
}

func (s *memMatchStore) Save(_ context.Context, m *domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m
	return nil
}

func newTestClient(id, address string, hub *Hub) *Client {
	return &Client{
		ID:      id,
		Address: address,
		Send:    make(chan []byte, sendBuffer),
		Hub:     hub,
		Done:    make(chan struct{}),
	}
}

type wireMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func recv(t *testing.T, c *Client) wireMsg {
	t.Helper()
	select {
	case data := <-c.Send:
		var m wireMsg
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return wireMsg{}
}

// waitFor drains messages until one of the wanted type arrives.
func waitFor(t *testing.T, c *Client, msgType string) wireMsg {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m := recv(t, c)
		if m.Type == msgType {
			return m
		}
	}
	t.Fatalf("never saw message of type %q", msgType)
	return wireMsg{}
}

func depositMatch(id string) *domain.Match {
	deadline := time.Now().Add(time.Minute)
	return &domain.Match{
		ID:                id,
		CreatorAddress:    creatorAddr,
		ChallengerAddress: challengerAddr,
		PriceWei:          "1000000000000000000",
		Phase:             domain.PhaseAwaitingDeposit,
		CreatorDeposited:  true,
		DepositDeadline:   &deadline,
		CreatedAt:         time.Now(),
	}
}

func joinEnv(matchID string) Envelope {
	return Envelope{
		Type:    MsgJoinRoom,
		Payload: json.RawMessage(fmt.Sprintf(`{"match_id":%q}`, matchID)),
	}
}

func TestIdentityMultiTabDelivery(t *testing.T) {
	hub := NewHub(Deps{})

	tab1 := newTestClient("c1", "", hub)
	tab2 := newTestClient("c2", "", hub)
	hub.AddConnection(tab1)
	hub.AddConnection(tab2)

	hub.BindIdentity(tab1, creatorAddr)
	hub.BindIdentity(tab2, creatorAddr)

	hub.SendToIdentity(creatorAddr, Message{Type: "ping"})
	assert.Equal(t, "ping", recv(t, tab1).Type)
	assert.Equal(t, "ping", recv(t, tab2).Type)
}

func TestRebindMovesConnectionBetweenIdentities(t *testing.T) {
	hub := NewHub(Deps{})
	c := newTestClient("c1", "", hub)
	hub.AddConnection(c)

	hub.BindIdentity(c, creatorAddr)
	hub.BindIdentity(c, challengerAddr)

	hub.SendToIdentity(creatorAddr, Message{Type: "ping"})
	select {
	case <-c.Send:
		t.Fatal("old identity still delivers")
	default:
	}

	hub.SendToIdentity(challengerAddr, Message{Type: "ping"})
	assert.Equal(t, "ping", recv(t, c).Type)
}

func TestDisconnectUnbindsIdentity(t *testing.T) {
	hub := NewHub(Deps{})
	tab1 := newTestClient("c1", creatorAddr, hub)
	tab2 := newTestClient("c2", creatorAddr, hub)
	hub.AddConnection(tab1)
	hub.AddConnection(tab2)

	hub.OnDisconnect(tab1)

	hub.mu.RLock()
	set := hub.identities[creatorAddr]
	hub.mu.RUnlock()
	require.Len(t, set, 1)

	hub.OnDisconnect(tab2)

	hub.mu.RLock()
	_, stillBound := hub.identities[creatorAddr]
	hub.mu.RUnlock()
	assert.False(t, stillBound)
}

func TestJoinUnknownMatchRejected(t *testing.T) {
	hub := NewHub(Deps{Matches: newMemMatchStore()})
	c := newTestClient("c1", creatorAddr, hub)
	hub.AddConnection(c)

	hub.HandleInbound(c, joinEnv("no-such-match"))

	msg := recv(t, c)
	assert.Equal(t, MsgError, msg.Type)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, "unknown_match", p.Code)
}

func TestJoinRoomLazyCreateAndSnapshot(t *testing.T) {
	m := depositMatch("match-1")
	hub := NewHub(Deps{Matches: newMemMatchStore(m)})
	c := newTestClient("c1", creatorAddr, hub)
	hub.AddConnection(c)

	hub.HandleInbound(c, joinEnv("match-1"))

	joined := waitFor(t, c, MsgRoomJoined)
	var jp RoomJoinedPayload
	require.NoError(t, json.Unmarshal(joined.Payload, &jp))
	assert.Equal(t, "match-1", jp.MatchID)

	state := waitFor(t, c, MsgGameStateUpdate)
	var sp StatePayload
	require.NoError(t, json.Unmarshal(state.Payload, &sp))
	require.NotNil(t, sp.Match)
	assert.Equal(t, domain.PhaseAwaitingDeposit, sp.Match.Phase)
	require.NotNil(t, sp.SecondsRemaining)
	assert.LessOrEqual(t, *sp.SecondsRemaining, 60)
}

func TestDepositFlowBroadcastsToRoom(t *testing.T) {
	m := depositMatch("match-1")
	store := newMemMatchStore(m)
	hub := NewHub(Deps{Matches: store})

	creator := newTestClient("c1", creatorAddr, hub)
	challenger := newTestClient("c2", challengerAddr, hub)
	hub.AddConnection(creator)
	hub.AddConnection(challenger)

	hub.HandleInbound(creator, joinEnv("match-1"))
	hub.HandleInbound(challenger, joinEnv("match-1"))
	waitFor(t, creator, MsgGameStateUpdate)
	waitFor(t, challenger, MsgGameStateUpdate)

	hub.HandleInbound(challenger, Envelope{
		Type:    MsgConfirmDeposit,
		Payload: json.RawMessage(`{"match_id":"match-1","role":"challenger"}`),
	})

	// every member sees the transition, not just the sender
	waitFor(t, creator, "game_started")
	waitFor(t, challenger, "game_started")

	state := waitFor(t, creator, MsgGameStateUpdate)
	var sp StatePayload
	require.NoError(t, json.Unmarshal(state.Payload, &sp))
	assert.Equal(t, domain.PhaseActive, sp.Match.Phase)
	assert.Equal(t, 1, sp.Match.CurrentRound)

	// the durable record moved with the room
	saved, err := store.GetByID(context.Background(), "match-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseActive, saved.Phase)
}

func TestOpenRoomCopiesCallerSnapshot(t *testing.T) {
	m := depositMatch("match-1")
	store := newMemMatchStore(m)
	hub := NewHub(Deps{Matches: store})

	hub.OpenRoom(m)

	challenger := newTestClient("c1", challengerAddr, hub)
	hub.AddConnection(challenger)
	hub.HandleInbound(challenger, joinEnv("match-1"))
	waitFor(t, challenger, MsgGameStateUpdate)

	hub.HandleInbound(challenger, Envelope{
		Type:    MsgConfirmDeposit,
		Payload: json.RawMessage(`{"match_id":"match-1","role":"challenger"}`),
	})
	waitFor(t, challenger, "game_started")

	// the room advanced its own copy and the store, never the pointer
	// the caller handed in
	saved, err := store.GetByID(context.Background(), "match-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseActive, saved.Phase)
	assert.Equal(t, domain.PhaseAwaitingDeposit, m.Phase)
	assert.False(t, m.ChallengerDeposited)
}

func TestActionFromOutsiderRejected(t *testing.T) {
	m := depositMatch("match-1")
	hub := NewHub(Deps{Matches: newMemMatchStore(m)})

	outsider := newTestClient("c1", "0xcccccccccccccccccccccccccccccccccccccccc", hub)
	hub.AddConnection(outsider)
	hub.HandleInbound(outsider, joinEnv("match-1"))
	waitFor(t, outsider, MsgGameStateUpdate)

	hub.HandleInbound(outsider, Envelope{
		Type:    MsgMakeChoice,
		Payload: json.RawMessage(`{"match_id":"match-1","choice":"heads"}`),
	})

	msg := waitFor(t, outsider, MsgError)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, "wrong_phase", p.Code)
}

func TestExpiredDepositDeadlineAbandonsOnOpen(t *testing.T) {
	past := time.Now().Add(-time.Second)
	m := depositMatch("match-1")
	m.DepositDeadline = &past
	store := newMemMatchStore(m)
	hub := NewHub(Deps{Matches: store})

	hub.OpenRoom(m)

	// the room loop abandons on its own and winds itself down
	require.Eventually(t, func() bool {
		saved, _ := store.GetByID(context.Background(), "match-1")
		return saved != nil && saved.Phase == domain.PhaseAbandoned
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		_, alive := hub.rooms["match-1"]
		return !alive
	}, 2*time.Second, 10*time.Millisecond)
}
