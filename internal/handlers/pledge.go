package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pledgr/internal/models"
	"pledgr/internal/service"
)

// PledgeHandler serves the supporter side of the ledger.
type PledgeHandler struct {
	Pledges *service.PledgeService
}

func NewPledgeHandler(pledges *service.PledgeService) *PledgeHandler {
	return &PledgeHandler{Pledges: pledges}
}

// CreatePledgeRequest is a pledge to a campaign. Amount may be left out when
// a level is chosen.
type CreatePledgeRequest struct {
	CampaignID int64        `json:"campaign_id" binding:"required,gt=0"`
	LevelID    *int64       `json:"level_id"`
	Amount     models.Money `json:"amount"`
}

func (h *PledgeHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreatePledgeRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.Pledges.CreatePledge(c.Request.Context(), userID, service.PledgeInput{
		CampaignID: req.CampaignID,
		LevelID:    req.LevelID,
		Amount:     req.Amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Pledge completed."
	if result.RedirectURL != "" {
		message = "Payment link created."
	}

	resp := gin.H{
		"message":   message,
		"pledge_id": result.Pledge.ID,
		"pledge":    result.Pledge,
		"currency":  result.Currency,
	}
	if result.Settlement != nil {
		resp["settlement"] = result.Settlement
	}
	if result.RedirectURL != "" {
		resp["redirect_url"] = result.RedirectURL
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PledgeHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	pledges, err := h.Pledges.ListPledgesForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if pledges == nil {
		pledges = []models.Pledge{}
	}
	c.JSON(http.StatusOK, gin.H{"pledges": pledges})
}

func (h *PledgeHandler) Cancel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	pledge, err := h.Pledges.CancelPledge(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pledge cancelled.", "pledge": pledge})
}

// Aggregate returns the live pledged total and supporter count of a campaign.
func (h *PledgeHandler) Aggregate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	agg, err := h.Pledges.AggregateForCampaign(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}
