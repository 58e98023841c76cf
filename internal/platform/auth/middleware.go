package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notebook-lending/internal/platform/apperr"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
	CtxClaimsKey = "claims"
)

// RequireAuth: Authorization: Bearer <token> を検証して context に sub/role を詰める
func RequireAuth(tokens *Tokens, revoker Revoker, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			apperr.Respond(c, log, apperr.Unauthenticated("missing Authorization header"))
			return
		}

		scheme, tokenStr, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			apperr.Respond(c, log, apperr.InvalidCredential("invalid Authorization header"))
			return
		}
		tokenStr = strings.TrimSpace(tokenStr)
		if tokenStr == "" {
			apperr.Respond(c, log, apperr.Unauthenticated("empty token"))
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			apperr.Respond(c, log, apperr.InvalidCredential("invalid or expired token"))
			return
		}
		personID, err := claims.PersonID()
		if err != nil {
			apperr.Respond(c, log, apperr.InvalidCredential("invalid sub"))
			return
		}

		revoked, err := revoker.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			apperr.Respond(c, log, err)
			return
		}
		if revoked {
			apperr.Respond(c, log, apperr.InvalidCredential("token has been revoked"))
			return
		}

		c.Set(CtxUserIDKey, personID)
		c.Set(CtxRoleKey, claims.Role)
		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

// RequireRole: 例) admin のみ許可したい時に追加
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(CtxRoleKey)
		if _, allowed := roleSet[role]; !allowed {
			apperr.Respond(c, nil, apperr.PermissionDenied("forbidden"))
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the verified claims stored by RequireAuth.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
