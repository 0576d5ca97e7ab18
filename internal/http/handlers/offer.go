package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"nftflip/internal/domain"
	"nftflip/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CreateOfferRequest struct {
	ListingID      string `json:"listing_id"`
	CreatorAddress string `json:"creator_address"`
	NFTContract    string `json:"nft_contract"`
	NFTTokenID     string `json:"nft_token_id"`
	PriceWei       string `json:"price_wei"`
}

// CreateOffer records a pending offer against a listing. The caller is
// the offerer; the listing creator decides whether to accept.
func (h *Handler) CreateOffer(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CreateOfferRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if req.ListingID == "" || req.CreatorAddress == "" || req.PriceWei == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields"})
		return
	}
	if strings.EqualFold(req.CreatorAddress, address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot offer against own listing"})
		return
	}

	offer := &domain.Offer{
		ID:             uuid.NewString(),
		ListingID:      req.ListingID,
		CreatorAddress: strings.ToLower(req.CreatorAddress),
		OffererAddress: address,
		NFTContract:    req.NFTContract,
		NFTTokenID:     req.NFTTokenID,
		PriceWei:       req.PriceWei,
		Status:         domain.OfferPending,
		CreatedAt:      time.Now(),
	}

	if err := h.OfferRepo.Create(c.Request.Context(), offer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create offer"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"offer": offer})
}

// AcceptOffer promotes a pending offer into a match. Only the listing
// creator may accept; repeated accepts return the same match.
func (h *Handler) AcceptOffer(c *gin.Context) {
	address, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	offerID := c.Param("id")
	offer, err := h.OfferRepo.GetByID(c.Request.Context(), offerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if offer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "offer not found"})
		return
	}
	if !strings.EqualFold(offer.CreatorAddress, address) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the listing creator may accept"})
		return
	}

	m, err := h.Promotion.CreateMatchFromAcceptedOffer(c.Request.Context(), offerID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownOffer):
			c.JSON(http.StatusNotFound, gin.H{"error": "offer not found"})
		case errors.Is(err, service.ErrOfferNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": "offer is not pending"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "accept failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": m})
}
