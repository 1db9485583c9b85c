package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/midtrans/midtrans-go/coreapi"

	"pledgr/internal/apperr"
	"pledgr/internal/service"
)

type PaymentHandler struct {
	Pledges *service.PledgeService
}

func NewPaymentHandler(pledges *service.PledgeService) *PaymentHandler {
	return &PaymentHandler{Pledges: pledges}
}

// HandlePaymentNotification receives the gateway's webhook. Only the order id
// is read from the body; the outcome comes from asking the provider again.
func (h *PaymentHandler) HandlePaymentNotification(c *gin.Context) {
	var notification coreapi.TransactionStatusResponse
	if err := c.ShouldBindJSON(&notification); err != nil {
		log.Println("Failed to bind payment notification:", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid notification format",
			"code":  apperr.KindValidation,
		})
		return
	}

	outcome, err := h.Pledges.HandlePaymentNotification(c.Request.Context(), notification.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}

	log.Printf("Payment notification for order %s: %s", notification.OrderID, outcome)
	c.JSON(http.StatusOK, gin.H{"status": outcome})
}
