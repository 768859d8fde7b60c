package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	providerdomain "github.com/smallbiznis/payway/internal/provider/domain"
)

const contextProviderKey = "auth_provider"

// APIKeyRequired authenticates requests with a provider API key carried as a
// bearer token. Provider identity is derived solely from the providers table.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		p, err := s.providerSvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, providerdomain.ErrProviderNotFound) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}

		c.Set(contextProviderKey, p)
		c.Next()
	}
}

// authedProvider returns the provider the API key middleware resolved, or nil
// on routes that skipped it.
func authedProvider(c *gin.Context) *providerdomain.Provider {
	value, ok := c.Get(contextProviderKey)
	if !ok {
		return nil
	}
	p, ok := value.(*providerdomain.Provider)
	if !ok {
		return nil
	}
	return p
}
