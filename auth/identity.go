package auth

import (
	"context"

	"github.com/gin-gonic/gin"

	"inkwell/models"
)

// Identity is the authenticated caller as resolved by the Gate. Services take
// it as an explicit argument; nil means anonymous.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Is reports whether the identity belongs to userID. A nil identity matches
// nobody.
func (i *Identity) Is(userID string) bool {
	return i != nil && i.ID != "" && i.ID == userID
}

func IdentityOf(u *models.User) *Identity {
	return &Identity{ID: u.ID, Email: u.Email, Name: u.Name}
}

type identityKey struct{}

const ginIdentityKey = "identity"

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Current returns the identity the Gate attached to the request, or nil.
func Current(c *gin.Context) *Identity {
	v, ok := c.Get(ginIdentityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*Identity)
	return id
}

func attach(c *gin.Context, id *Identity) {
	c.Set(ginIdentityKey, id)
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
}
