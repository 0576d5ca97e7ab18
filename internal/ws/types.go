package ws

const (
	// client - server
	MsgRegisterIdentity = "register_identity"
	MsgJoinRoom         = "join_room"
	MsgConfirmDeposit   = "confirm_deposit"
	MsgMakeChoice       = "make_choice"
	MsgChargePower      = "charge_power"
	MsgReleaseFlip      = "release_flip"
	MsgRequestState     = "request_state"

	// server - client
	MsgIdentityRegistered = "identity_registered"
	MsgRoomJoined         = "room_joined"
	MsgGameStateUpdate    = "game_state_update"
	MsgOfferAccepted      = "offer_accepted"
	MsgError              = "error"
)
