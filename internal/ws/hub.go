package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"nftflip/internal/domain"
	"nftflip/internal/escrow"
	"nftflip/internal/logger"
	"nftflip/internal/match"

	redis "github.com/redis/go-redis/v9"
)

const presenceTTL = 5 * time.Minute

// MatchStore is the durable store slice the hub and rooms need.
type MatchStore interface {
	GetByID(ctx context.Context, id string) (*domain.Match, error)
	Save(ctx context.Context, m *domain.Match) error
}

// EventStore holds the durable room history replayed to late joiners.
type EventStore interface {
	Append(ctx context.Context, matchID, eventType string, payload []byte) error
	RecentByMatch(ctx context.Context, matchID string, limit int) ([]domain.RoomEvent, error)
}

// PayoutStore records escrow instructions produced by terminal matches.
type PayoutStore interface {
	Create(ctx context.Context, p *domain.Payout) error
	MarkSettled(ctx context.Context, id int64) error
	MarkAttemptFailed(ctx context.Context, id int64, cause string) error
}

// Deps wires the hub's collaborators. Nil stores degrade gracefully
// (no persistence, no replay), which unit tests rely on.
type Deps struct {
	Matches  MatchStore
	Events   EventStore
	Payouts  PayoutStore
	Escrow   escrow.Escrow
	Engine   *match.Engine
	Presence *redis.Client
}

// Hub is the connection registry: one per process, constructed in main
// and injected into handlers. It maps connections to identities and to
// match rooms; rooms own all match-state processing.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]*Client
	identities map[string]map[string]*Client
	rooms      map[string]*Room

	deps Deps
}

func NewHub(deps Deps) *Hub {
	if deps.Engine == nil {
		deps.Engine = match.NewEngine(match.NewCryptoRng(), match.Config{})
	}
	if deps.Escrow == nil {
		deps.Escrow = escrow.Noop{}
	}
	return &Hub{
		conns:      make(map[string]*Client),
		identities: make(map[string]map[string]*Client),
		rooms:      make(map[string]*Room),
		deps:       deps,
	}
}

// AddConnection registers a connection and binds its identity when one
// is already known from the upgrade token.
func (h *Hub) AddConnection(c *Client) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()

	if c.Address != "" {
		h.BindIdentity(c, c.Address)
	}
}

// BindIdentity binds a wallet address to a connection. Rebinding and
// duplicate binds never fail; several connections may share an address.
func (h *Hub) BindIdentity(c *Client, address string) {
	h.mu.Lock()
	if c.Address != "" && c.Address != address {
		h.unbindLocked(c)
	}
	c.Address = address
	set, ok := h.identities[address]
	if !ok {
		set = make(map[string]*Client)
		h.identities[address] = set
	}
	set[c.ID] = c
	h.mu.Unlock()

	h.markOnline(address)
}

// OnDisconnect removes a connection from its room and from the
// identity index. Match state is never touched here.
func (h *Hub) OnDisconnect(c *Client) {
	h.mu.Lock()
	delete(h.conns, c.ID)
	room := h.rooms[c.roomID]
	c.roomID = ""
	lastOfIdentity := h.unbindLocked(c)
	h.mu.Unlock()

	if room != nil {
		room.enqueueLeave(c)
	}
	if lastOfIdentity {
		h.markOffline(c.Address)
	}
}

// JoinRoom subscribes a connection to a match's events. Idempotent; a
// connection sits in at most one room, so a different previous room is
// left first. The room is created lazily from the durable match record.
func (h *Hub) JoinRoom(c *Client, matchID string) error {
	room, err := h.getOrCreateRoom(matchID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	prevID := c.roomID
	if prevID == matchID {
		h.mu.Unlock()
		room.enqueueJoin(c) // re-join still replays state to this connection
		return nil
	}
	prev := h.rooms[prevID]
	c.roomID = matchID
	h.mu.Unlock()

	if prev != nil {
		prev.enqueueLeave(c)
	}
	if !room.enqueueJoin(c) {
		return match.ErrUnknownMatch
	}
	return nil
}

// OpenRoom starts a room for a freshly created match (promotion path)
// so its deposit timer is armed even before anyone connects.
func (h *Hub) OpenRoom(m *domain.Match) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[m.ID]; ok {
		return room
	}
	// the room loop becomes the match's sole writer; the caller keeps
	// its own snapshot
	own := *m
	room := newRoom(&own, h)
	h.rooms[m.ID] = room
	go room.Run()
	return room
}

// OpenMatch and NotifyIdentity let packages that must not import ws
// concrete types (promotion, HTTP handlers) drive the hub through a
// narrow interface.
func (h *Hub) OpenMatch(m *domain.Match) {
	h.OpenRoom(m)
}

func (h *Hub) NotifyIdentity(address, eventType string, payload any) {
	h.SendToIdentity(address, Message{Type: eventType, Payload: payload})
}

// SendToIdentity delivers a private message to every connection bound
// to an address, regardless of room membership.
func (h *Hub) SendToIdentity(address string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("hub marshal failed", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.identities[address]))
	for _, c := range h.identities[address] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.sendRaw(data)
	}
}

// HandleInbound routes a parsed envelope. Registry concerns are
// resolved here; everything match-affecting is forwarded into the
// room's single-writer loop.
func (h *Hub) HandleInbound(c *Client, env Envelope) {
	switch env.Type {
	case MsgRegisterIdentity:
		var p RegisterIdentityPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Address == "" {
			h.rejectEnvelope(c, "bad_payload", "register_identity requires an address")
			return
		}
		h.BindIdentity(c, p.Address)
		c.SendMessage(Message{Type: MsgIdentityRegistered, Payload: RegisterIdentityPayload{Address: p.Address}})

	case MsgJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.MatchID == "" {
			h.rejectEnvelope(c, "bad_payload", "join_room requires a match_id")
			return
		}
		if err := h.JoinRoom(c, p.MatchID); err != nil {
			h.rejectEnvelope(c, "unknown_match", "no such match: "+p.MatchID)
		}

	case MsgConfirmDeposit, MsgMakeChoice, MsgChargePower, MsgReleaseFlip, MsgRequestState:
		room := h.roomFor(env)
		if room == nil {
			h.mu.RLock()
			room = h.rooms[c.roomID]
			h.mu.RUnlock()
		}
		if room == nil {
			h.rejectEnvelope(c, "unknown_match", "join a room or name a live match")
			return
		}
		select {
		case room.inbound <- inbound{c: c, env: &env}:
		case <-room.done:
			h.rejectEnvelope(c, "unknown_match", "match is no longer live")
		}

	default:
		h.rejectEnvelope(c, "unknown_type", "unsupported message type: "+env.Type)
	}
}

// SweepRooms drops rooms whose match is terminal and whose membership
// is empty. Wired as a periodic job from main.
func (h *Hub) SweepRooms() {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	for _, r := range rooms {
		r.requestSweep()
	}
}

func (h *Hub) roomFor(env Envelope) *Room {
	// every match-affecting payload carries match_id in the same spot
	var p struct {
		MatchID string `json:"match_id"`
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.MatchID == "" {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[p.MatchID]
}

func (h *Hub) getOrCreateRoom(matchID string) (*Room, error) {
	h.mu.RLock()
	room, ok := h.rooms[matchID]
	h.mu.RUnlock()
	if ok {
		return room, nil
	}

	if h.deps.Matches == nil {
		return nil, match.ErrUnknownMatch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m, err := h.deps.Matches.GetByID(ctx, matchID)
	if err != nil {
		logger.Error("hub: loading match failed", "match", matchID, "error", err)
		return nil, err
	}
	if m == nil {
		return nil, match.ErrUnknownMatch
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[matchID]; ok {
		return room, nil
	}
	room = newRoom(m, h)
	h.rooms[matchID] = room
	go room.Run()
	return room, nil
}

func (h *Hub) removeRoom(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, id)
}

// unbindLocked removes c from the identity index and reports whether it
// was the identity's last connection. Caller holds h.mu.
func (h *Hub) unbindLocked(c *Client) bool {
	set, ok := h.identities[c.Address]
	if !ok {
		return false
	}
	delete(set, c.ID)
	if len(set) == 0 {
		delete(h.identities, c.Address)
		return true
	}
	return false
}

func (h *Hub) rejectEnvelope(c *Client, code, msg string) {
	c.SendMessage(Message{Type: MsgError, Payload: ErrorPayload{Code: code, Message: msg}})
}

func (h *Hub) markOnline(address string) {
	if h.deps.Presence == nil || address == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.deps.Presence.Set(ctx, "presence:"+address, "online", presenceTTL).Err(); err != nil {
			logger.Debug("presence set failed", "address", address, "error", err)
		}
	}()
}

func (h *Hub) markOffline(address string) {
	if h.deps.Presence == nil || address == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.deps.Presence.Del(ctx, "presence:"+address).Err(); err != nil {
			logger.Debug("presence del failed", "address", address, "error", err)
		}
	}()
}
