package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pledgr/internal/models"
	"pledgr/internal/service"
)

// CampaignHandler serves the campaign catalogue and the owner's tools.
type CampaignHandler struct {
	Campaigns *service.CampaignService
}

func NewCampaignHandler(campaigns *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{Campaigns: campaigns}
}

type CampaignRequest struct {
	Name         string          `json:"name"`
	Title        string          `json:"title"`
	Category     models.Category `json:"category"`
	Description  string          `json:"description"`
	Image        string          `json:"image"`
	Goal         models.Money    `json:"goal"`
	DurationDays int             `json:"duration_days"`
}

func (r CampaignRequest) input() service.CampaignInput {
	return service.CampaignInput{
		Name:         r.Name,
		Title:        r.Title,
		Category:     r.Category,
		Description:  r.Description,
		Image:        r.Image,
		Goal:         r.Goal,
		DurationDays: r.DurationDays,
	}
}

type LevelRequest struct {
	Name        string       `json:"name"`
	Amount      models.Money `json:"amount"`
	Description string       `json:"description"`
	Benefits    []string     `json:"benefits"`
}

func (h *CampaignHandler) List(c *gin.Context) {
	params := parseListQueryParams(c.Query("category"), c.Query("limit"), c.Query("offset"))

	campaigns, err := h.Campaigns.ListCampaigns(c.Request.Context(), params.Category, params.Limit, params.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}

	limit, offset := service.PageBounds(params.Limit, params.Offset)
	c.JSON(http.StatusOK, gin.H{
		"campaigns": campaigns,
		"limit":     limit,
		"offset":    offset,
	})
}

func (h *CampaignHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CampaignRequest
	if !bindJSON(c, &req) {
		return
	}

	campaign, err := h.Campaigns.CreateCampaign(c.Request.Context(), userID, req.input())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Campaign created successfully.",
		"campaign_id": campaign.ID,
		"campaign":    campaign,
	})
}

func (h *CampaignHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	campaign, err := h.Campaigns.GetCampaign(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

func (h *CampaignHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req CampaignRequest
	if !bindJSON(c, &req) {
		return
	}

	campaign, err := h.Campaigns.UpdateCampaign(c.Request.Context(), userID, id, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Campaign updated.", "campaign": campaign})
}

func (h *CampaignHandler) AddLevel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req LevelRequest
	if !bindJSON(c, &req) {
		return
	}

	level, err := h.Campaigns.AddPledgeLevel(c.Request.Context(), userID, id, service.LevelInput{
		Name:        req.Name,
		Amount:      req.Amount,
		Description: req.Description,
		Benefits:    req.Benefits,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Pledge level added.",
		"level_id": level.ID,
		"level":    level,
	})
}

// ListSettlements is the owner's revenue view: one row per completed pledge.
func (h *CampaignHandler) ListSettlements(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	report, err := h.Campaigns.ListSettlements(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if report.Settlements == nil {
		report.Settlements = []models.Settlement{}
	}
	c.JSON(http.StatusOK, report)
}
