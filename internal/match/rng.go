package match

import (
	"crypto/rand"
	"math/big"

	"nftflip/internal/domain"
)

// Rng draws fair coin faces. The flip outcome is always drawn
// server-side and never derived from player input.
type Rng interface {
	Flip() domain.Side
}

type cryptoRng struct{}

// NewCryptoRng returns an Rng backed by crypto/rand.
func NewCryptoRng() Rng {
	return cryptoRng{}
}

func (cryptoRng) Flip() domain.Side {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; there is no meaningful fallback for a wagering flip.
		panic("rng: " + err.Error())
	}
	if n.Int64() == 0 {
		return domain.SideHeads
	}
	return domain.SideTails
}
