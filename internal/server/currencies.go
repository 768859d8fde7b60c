package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListCurrencies(c *gin.Context) {
	resp, err := s.currencySvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRate(c *gin.Context) {
	from := strings.ToUpper(strings.TrimSpace(c.Query("from")))
	to := strings.ToUpper(strings.TrimSpace(c.Query("to")))
	if from == "" || to == "" {
		AbortWithError(c, newValidationError("from", "invalid_pair", "from and to are required"))
		return
	}

	quote, err := s.ratesSvc.GetRate(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"from":   from,
		"to":     to,
		"rate":   quote.Rate,
		"source": quote.Source,
		"as_of":  quote.AsOf,
	}})
}
