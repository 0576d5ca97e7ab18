package domain

import "time"

// OfferStatus - lifecycle of a marketplace offer
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferDeclined OfferStatus = "declined"
)

// Offer is an accepted-marketplace-offer boundary record: a listing's
// creator has an NFT escrowed, an offerer proposes crypto (or another
// NFT) against it. Accepting one promotes it into a Match.
type Offer struct {
	ID             string      `json:"id"`
	ListingID      string      `json:"listing_id"`
	CreatorAddress string      `json:"creator_address"`
	OffererAddress string      `json:"offerer_address"`
	NFTContract    string      `json:"nft_contract"`
	NFTTokenID     string      `json:"nft_token_id"`
	PriceWei       string      `json:"price_wei"`
	Status         OfferStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	AcceptedAt     *time.Time  `json:"accepted_at,omitempty"`
}
