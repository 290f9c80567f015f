package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"inkwell/apperror"
	"inkwell/models"
)

// UserLookup resolves a token subject to a stored user. It must return a
// NotFoundError when the user no longer exists.
type UserLookup interface {
	Lookup(ctx context.Context, id string) (*models.User, error)
}

// Gate turns the Authorization header into an Identity.
type Gate struct {
	tokens *TokenIssuer
	users  UserLookup
}

func NewGate(tokens *TokenIssuer, users UserLookup) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// Resolve runs the per-request authentication: header -> token -> identity.
// Every failure is an AuthenticationError except a lookup failure, which is
// internal.
func (g *Gate) Resolve(ctx context.Context, header string) (*Identity, error) {
	if header == "" {
		return nil, apperror.Authentication(apperror.ReasonMissingToken, "Access token required")
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil, apperror.Authentication(apperror.ReasonMalformedHeader, "Authorization header must be 'Bearer <token>'")
	}
	raw := strings.TrimSpace(header[len(prefix):])
	if raw == "" {
		return nil, apperror.Authentication(apperror.ReasonMalformedHeader, "Authorization header must be 'Bearer <token>'")
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}

	user, err := g.users.Lookup(ctx, claims.UserID)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, apperror.Authentication(apperror.ReasonIdentityNotFound, "Invalid token - user not found")
	}
	if err != nil {
		return nil, apperror.Internal("Authentication failed", err)
	}
	return IdentityOf(user), nil
}

// RequireAuth rejects the request unless it carries a valid token for an
// existing user.
func (g *Gate) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := g.Resolve(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		attach(c, id)
		c.Next()
	}
}

// OptionalAuth attaches an identity when a usable token is present and lets
// the request through anonymously otherwise. Lookup failures still abort.
func (g *Gate) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		id, err := g.Resolve(c.Request.Context(), header)
		if err != nil {
			if apperror.Is(err, apperror.KindAuthentication) {
				c.Next()
				return
			}
			_ = c.Error(err)
			c.Abort()
			return
		}
		attach(c, id)
		c.Next()
	}
}
