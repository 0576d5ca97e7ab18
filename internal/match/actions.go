package match

import "nftflip/internal/domain"

// Action is the tagged union of everything that can mutate a match.
// Player actions carry the sender's identity; timeout actions are
// injected by the scheduler and carry nothing.
type Action interface {
	isAction()
}

// ConfirmDeposit records that a participant's stake reached escrow.
type ConfirmDeposit struct {
	Identity string
	Role     domain.Role
}

// MakeChoice records the turn owner's heads/tails call.
type MakeChoice struct {
	Identity string
	Choice   domain.Side
}

// ChargePower updates the turn owner's charge level. Last write wins;
// the value only affects presentation, never the flip outcome.
type ChargePower struct {
	Identity string
	Level    int
}

// ReleaseFlip finalizes the charge and triggers resolution.
type ReleaseFlip struct {
	Identity string
	Level    int
}

// TimeoutDeposit fires when the deposit window elapsed without both
// sides deposited.
type TimeoutDeposit struct{}

// TimeoutChoice fires when the turn owner stalled in Choosing; the
// server picks a uniformly random side on their behalf.
type TimeoutChoice struct{}

// TimeoutCharge fires when the turn owner stalled in Charging; the
// flip is released at the last charged level.
type TimeoutCharge struct{}

func (ConfirmDeposit) isAction() {}
func (MakeChoice) isAction()     {}
func (ChargePower) isAction()    {}
func (ReleaseFlip) isAction()    {}
func (TimeoutDeposit) isAction() {}
func (TimeoutChoice) isAction()  {}
func (TimeoutCharge) isAction()  {}
