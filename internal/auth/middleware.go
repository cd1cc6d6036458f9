package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"attendly/internal/errs"
	"attendly/internal/model"
)

const (
	userKey   = "user"
	claimsKey = "claims"
)

// UserLookup resolves the subject of a token to a live user.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Authenticate enforces bearer JWT tokens, resolves the user and checks that the token is the user's live session.
func Authenticate(signer Signer, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			abort(c, errs.ErrNoToken)
			return
		}
		claims, err := signer.Parse(tokenStr)
		if err != nil {
			abort(c, errs.ErrInvalidToken)
			return
		}
		user, err := users.FindByID(c.Request.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				abort(c, errs.ErrInvalidToken)
				return
			}
			abort(c, err)
			return
		}
		if user.SessionID == "" || user.SessionID != claims.ID {
			abort(c, errs.ErrSessionExpired)
			return
		}
		c.Set(userKey, user)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRoles rejects users whose role is not in the allow-list.
func RequireRoles(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			abort(c, errs.ErrNoToken)
			return
		}
		if !user.Role.In(roles...) {
			abort(c, errs.ErrForbiddenRole)
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil outside Authenticate.
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}

// CurrentClaims returns the verified token claims.
func CurrentClaims(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// bearerToken reads the Authorization header. Websocket upgrades may pass ?token= instead,
// since browsers cannot set headers on the handshake.
func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if authz != "" && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return c.Query("token")
	}
	return ""
}

func abort(c *gin.Context, err error) {
	status, msg := errs.Status(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
