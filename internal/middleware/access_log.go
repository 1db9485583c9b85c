package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// AccessLog writes one line per request once the handlers are done. It runs
// after RequestIDMiddleware and picks up the user id AuthMiddleware sets.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		userID, _ := UserID(c)

		log.Printf("request_id=%s user_id=%d %s %s status=%d bytes=%d took=%s",
			RequestIDFromContext(c),
			userID,
			c.Request.Method,
			route,
			c.Writer.Status(),
			c.Writer.Size(),
			time.Since(start).Round(time.Microsecond),
		)
	}
}
