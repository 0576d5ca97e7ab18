package ws

import (
	"context"
	"encoding/json"
	"time"

	"nftflip/internal/domain"
	"nftflip/internal/logger"
	"nftflip/internal/match"
	"nftflip/internal/metrics"
	"nftflip/internal/scheduler"
)

const historyReplayLimit = 50

type inbound struct {
	c   *Client
	env *Envelope
	act match.Action // scheduler-injected, bypasses envelope parsing
}

// Room hosts one match. Its Run loop is the single writer for the
// match state: player actions and scheduler timeouts are all funneled
// through the inbound channel and applied strictly in arrival order.
type Room struct {
	ID  string
	hub *Hub

	match  *domain.Match
	engine *match.Engine
	sched  *scheduler.Scheduler

	clients map[string]*Client

	join    chan *Client
	leave   chan *Client
	inbound chan inbound
	sweep   chan struct{}
	done    chan struct{}

	createdAt time.Time
}

func newRoom(m *domain.Match, hub *Hub) *Room {
	r := &Room{
		ID:        m.ID,
		hub:       hub,
		match:     m,
		engine:    hub.deps.Engine,
		clients:   make(map[string]*Client),
		join:      make(chan *Client, 8),
		leave:     make(chan *Client, 8),
		inbound:   make(chan inbound, 64),
		sweep:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	r.sched = scheduler.New(r.onDeadline)
	return r
}

// Run processes the room until its match is terminal and its
// membership empty. The loop alone touches r.match; timers and pumps
// only ever send into the channels.
func (r *Room) Run() {
	metrics.ActiveRooms.Inc()
	defer metrics.ActiveRooms.Dec()
	defer close(r.done)
	defer r.sched.CancelAll()
	defer r.hub.removeRoom(r.ID)

	// arm whatever deadline the durable record carries; a deposit
	// deadline that already passed fires immediately and abandons
	r.sched.Sync(r.match)

	for {
		select {
		case c := <-r.join:
			r.handleJoin(c)
		case c := <-r.leave:
			delete(r.clients, c.ID)
		case in := <-r.inbound:
			r.dispatch(in)
		case <-r.sweep:
		}

		if r.match.Terminal() && len(r.clients) == 0 {
			logger.Info("room closed", "match", r.ID, "phase", r.match.Phase)
			return
		}
	}
}

// onDeadline runs on a timer goroutine; it only queues the synthetic
// action, the loop applies it.
func (r *Room) onDeadline(slot scheduler.Slot) {
	metrics.TimeoutsFired.WithLabelValues(string(slot)).Inc()

	var act match.Action
	switch slot {
	case scheduler.SlotDeposit:
		act = match.TimeoutDeposit{}
	case scheduler.SlotChoice:
		act = match.TimeoutChoice{}
	case scheduler.SlotCharge:
		act = match.TimeoutCharge{}
	default:
		return
	}

	select {
	case r.inbound <- inbound{act: act}:
	case <-r.done:
	}
}

func (r *Room) requestSweep() {
	select {
	case r.sweep <- struct{}{}:
	default:
	}
}

// enqueueJoin/enqueueLeave never block a pump goroutine on a room
// whose loop already exited.
func (r *Room) enqueueJoin(c *Client) bool {
	select {
	case r.join <- c:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) enqueueLeave(c *Client) {
	select {
	case r.leave <- c:
	case <-r.done:
	}
}

func (r *Room) handleJoin(c *Client) {
	r.clients[c.ID] = c

	// one-time replay of recent durable events for the newcomer only
	if r.hub.deps.Events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		history, err := r.hub.deps.Events.RecentByMatch(ctx, r.ID, historyReplayLimit)
		cancel()
		if err != nil {
			logger.Warn("room: history replay failed", "match", r.ID, "error", err)
		}
		for _, ev := range history {
			c.sendRaw(ev.Payload)
		}
	}

	c.SendMessage(Message{Type: MsgRoomJoined, Payload: RoomJoinedPayload{
		MatchID:     r.ID,
		MemberCount: len(r.clients),
	}})
	r.sendState(c)
}

func (r *Room) dispatch(in inbound) {
	if in.act != nil {
		r.apply(nil, in.act)
		return
	}

	switch in.env.Type {
	case MsgRequestState:
		// side-effect-free snapshot pull, usable at any time
		r.sendState(in.c)

	case MsgConfirmDeposit:
		var p ConfirmDepositPayload
		if err := json.Unmarshal(in.env.Payload, &p); err != nil {
			r.rejectAction(in.c, "bad_payload", "confirm_deposit requires {match_id, role}")
			return
		}
		r.apply(in.c, match.ConfirmDeposit{Identity: in.c.Address, Role: p.Role})

	case MsgMakeChoice:
		var p MakeChoicePayload
		if err := json.Unmarshal(in.env.Payload, &p); err != nil {
			r.rejectAction(in.c, "bad_payload", "make_choice requires {match_id, choice}")
			return
		}
		r.apply(in.c, match.MakeChoice{Identity: in.c.Address, Choice: p.Choice})

	case MsgChargePower:
		var p ChargePowerPayload
		if err := json.Unmarshal(in.env.Payload, &p); err != nil {
			r.rejectAction(in.c, "bad_payload", "charge_power requires {match_id, level}")
			return
		}
		r.apply(in.c, match.ChargePower{Identity: in.c.Address, Level: p.Level})

	case MsgReleaseFlip:
		var p ReleaseFlipPayload
		if err := json.Unmarshal(in.env.Payload, &p); err != nil {
			r.rejectAction(in.c, "bad_payload", "release_flip requires {match_id, level}")
			return
		}
		r.apply(in.c, match.ReleaseFlip{Identity: in.c.Address, Level: p.Level})
	}
}

// apply runs one action through the engine, then persists, broadcasts
// and re-arms timers. origin is nil for scheduler-injected actions.
func (r *Room) apply(origin *Client, act match.Action) {
	events, err := r.engine.Apply(r.match, act, time.Now())
	if err != nil {
		// rejected: the sender learns which precondition failed,
		// everyone else sees nothing
		if origin != nil {
			r.rejectAction(origin, rejectCode(err), err.Error())
		}
		return
	}
	if len(events) == 0 {
		return
	}

	r.persist()

	for _, ev := range events {
		msg := Message{Type: ev.EventType(), Payload: ev}
		data, err := json.Marshal(msg)
		if err != nil {
			logger.Error("room: marshal event failed", "match", r.ID, "type", ev.EventType(), "error", err)
			continue
		}
		r.appendHistory(ev.EventType(), data)
		r.broadcast(data)
		r.settle(ev)
	}
	r.broadcastState()
	r.sched.Sync(r.match)
}

// broadcast fans an event out to every room member. Delivery is
// fire-and-forget per connection; a stale member is dropped from the
// room without aborting delivery to the rest.
func (r *Room) broadcast(data []byte) {
	for id, c := range r.clients {
		if !c.sendRaw(data) {
			delete(r.clients, id)
			metrics.DroppedSends.Inc()
			logger.Warn("room: dropped stale member", "match", r.ID, "conn", id)
			continue
		}
		metrics.BroadcastsSent.Inc()
	}
}

func (r *Room) broadcastState() {
	msg := Message{Type: MsgGameStateUpdate, Payload: r.statePayload()}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("room: marshal state failed", "match", r.ID, "error", err)
		return
	}
	r.broadcast(data)
}

func (r *Room) sendState(c *Client) {
	if c == nil {
		return
	}
	c.SendMessage(Message{Type: MsgGameStateUpdate, Payload: r.statePayload()})
}

func (r *Room) statePayload() StatePayload {
	p := StatePayload{Match: r.match}
	if slot, ok := activeSlot(r.match); ok {
		if left, armed := r.sched.Remaining(slot); armed {
			p.SecondsRemaining = &left
		}
	}
	return p
}

func (r *Room) persist() {
	if r.hub.deps.Matches == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.hub.deps.Matches.Save(ctx, r.match); err != nil {
		logger.Error("room: persisting match failed", "match", r.ID, "error", err)
	}
}

// appendHistory runs on the room loop so rows land in emit order;
// replay depends on insertion order within a batch.
func (r *Room) appendHistory(eventType string, data []byte) {
	if r.hub.deps.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.hub.deps.Events.Append(ctx, r.ID, eventType, data); err != nil {
		logger.Warn("room: appending history failed", "match", r.ID, "error", err)
	}
}

// settle turns terminal events into durable escrow instructions and
// attempts them once; failed attempts are left for the payout worker.
func (r *Room) settle(ev match.Event) {
	var payout *domain.Payout
	switch e := ev.(type) {
	case match.GameComplete:
		winner := e.Winner
		payout = &domain.Payout{
			MatchID:       r.ID,
			Kind:          domain.PayoutRelease,
			WinnerAddress: &winner,
			Status:        domain.PayoutPending,
		}
	case match.MatchAbandoned:
		payout = &domain.Payout{
			MatchID: r.ID,
			Kind:    domain.PayoutRefund,
			Status:  domain.PayoutPending,
		}
	default:
		return
	}

	if r.hub.deps.Payouts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := r.hub.deps.Payouts.Create(ctx, payout)
	cancel()
	if err != nil {
		logger.Error("room: recording payout failed", "match", r.ID, "error", err)
		return
	}

	esc := r.hub.deps.Escrow
	payouts := r.hub.deps.Payouts
	p := *payout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var err error
		if p.Kind == domain.PayoutRefund {
			err = esc.RefundAll(ctx, p.MatchID)
		} else {
			winner := ""
			if p.WinnerAddress != nil {
				winner = *p.WinnerAddress
			}
			err = esc.Release(ctx, p.MatchID, winner)
		}
		if err != nil {
			metrics.PayoutRetries.Inc()
			logger.Warn("room: escrow call failed, left for worker", "match", p.MatchID, "error", err)
			_ = payouts.MarkAttemptFailed(ctx, p.ID, err.Error())
			return
		}
		_ = payouts.MarkSettled(ctx, p.ID)
	}()
}

func (r *Room) rejectAction(c *Client, code, msg string) {
	c.SendMessage(Message{Type: MsgError, Payload: ErrorPayload{Code: code, Message: msg}})
}

func rejectCode(err error) string {
	switch err {
	case match.ErrNotYourTurn:
		return "not_your_turn"
	case match.ErrWrongPhase:
		return "wrong_phase"
	case match.ErrNotParticipant:
		return "not_participant"
	case match.ErrInvalidChoice:
		return "invalid_choice"
	case match.ErrAlreadyChosen:
		return "already_chosen"
	default:
		return "rejected"
	}
}

func activeSlot(m *domain.Match) (scheduler.Slot, bool) {
	switch {
	case m.Phase == domain.PhaseAwaitingDeposit:
		return scheduler.SlotDeposit, true
	case m.Phase == domain.PhaseActive && m.Round.Phase == domain.RoundChoosing:
		return scheduler.SlotChoice, true
	case m.Phase == domain.PhaseActive && m.Round.Phase == domain.RoundCharging:
		return scheduler.SlotCharge, true
	}
	return "", false
}
