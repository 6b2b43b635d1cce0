package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicCaller tags the nrgin transaction with the caller and reports
// handler errors attached through c.Error. Runs after nrgin and auth.
func NewRelicCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}
		if id := CallerID(c); id != "" {
			txn.AddAttribute("user_id", id)
			txn.AddAttribute("role", string(CallerRole(c)))
		}

		c.Next()

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
