package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pledgr/internal/apperr"
	"pledgr/internal/middleware"
)

type listQueryParams struct {
	Category string
	Limit    int
	Offset   int
}

// parseListQueryParams reads the list query string. Missing or malformed
// numbers come back as zero; the campaign service applies the paging bounds.
func parseListQueryParams(rawCategory, rawLimit, rawOffset string) listQueryParams {
	limit, _ := strconv.Atoi(strings.TrimSpace(rawLimit))
	offset, _ := strconv.Atoi(strings.TrimSpace(rawOffset))

	return listQueryParams{
		Category: strings.TrimSpace(rawCategory),
		Limit:    limit,
		Offset:   offset,
	}
}

// respondError writes {"error", "code"} for err. Unexpected failures are
// logged with the request id and answered with a generic message.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError || kind == apperr.KindPayment {
		log.Printf("request_id=%s %s %s failed: %v", middleware.RequestIDFromContext(c), c.Request.Method, c.FullPath(), err)
	}

	c.JSON(status, gin.H{"error": apperr.Message(err), "code": kind})
}

// bindJSON decodes the request body into req, answering 400 on failure.
// RouteNotFound answers unknown routes in the API's error format.
func RouteNotFound(c *gin.Context) {
	respondError(c, apperr.NotFound("route not found"))
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
			"code":  apperr.KindValidation,
		})
		return false
	}
	return true
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperr.Validation("invalid "+name))
		return 0, false
	}
	return id, true
}

func currentUserID(c *gin.Context) (int64, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		log.Println("UserID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
			"code":  apperr.KindAuthentication,
		})
		return 0, false
	}
	return userID, true
}
