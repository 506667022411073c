package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/qaforum/auth"
	"github.com/cppla/qaforum/config"
	"github.com/cppla/qaforum/models"
	"github.com/cppla/qaforum/utils"
)

const (
	// ContextIdentityKey stores the request's auth.Identity inside Gin context.
	ContextIdentityKey = "identity"
	// ContextClaimsKey stores the parsed token claims of an authenticated request.
	ContextClaimsKey = "claims"
	// TokenCookie carries the session token for browser clients.
	TokenCookie = "qa_token"
	// LoginPath is where unauthenticated browser requests are sent.
	LoginPath = "/login/"
)

// Authenticate resolves the caller from a bearer header or the session cookie.
// Requests without a usable token continue as anonymous.
func Authenticate(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set(ContextIdentityKey, auth.Identity{})

		tokenString := TokenFromRequest(ctx)
		if tokenString == "" {
			ctx.Next()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil || utils.IsTokenBlacklisted(claims.ID) {
			ctx.Next()
			return
		}

		var user models.User
		if err := db.Preload("Permissions").First(&user, claims.UserID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Sugar.Errorw("failed to load identity", "user_id", claims.UserID, "err", err)
			}
			ctx.Next()
			return
		}

		ctx.Set(ContextIdentityKey, auth.NewIdentity(user, config.Get().IsAdmin(user.Username)))
		ctx.Set(ContextClaimsKey, claims)
		ctx.Next()
	}
}

// TokenFromRequest returns the raw token from "Authorization: Bearer" or the session cookie.
func TokenFromRequest(ctx *gin.Context) string {
	if authHeader := ctx.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := ctx.Cookie(TokenCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// CurrentIdentity returns the identity resolved by Authenticate, or anonymous.
func CurrentIdentity(ctx *gin.Context) auth.Identity {
	if v, ok := ctx.Get(ContextIdentityKey); ok {
		if id, ok := v.(auth.Identity); ok {
			return id
		}
	}
	return auth.Identity{}
}

// CurrentClaims returns the token claims of an authenticated request.
func CurrentClaims(ctx *gin.Context) (*utils.Claims, bool) {
	v, ok := ctx.Get(ContextClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*utils.Claims)
	return claims, ok
}

// LoginRequired redirects anonymous browser requests to the login page, preserving the target path.
func LoginRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if CurrentIdentity(ctx).Authenticated() {
			ctx.Next()
			return
		}
		target := LoginPath + "?next=" + url.QueryEscape(ctx.Request.URL.RequestURI())
		ctx.Redirect(http.StatusFound, target)
		ctx.Abort()
	}
}

// AuthRequired rejects anonymous API requests with 401.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !CurrentIdentity(ctx).Authenticated() {
			utils.AbortError(ctx, http.StatusUnauthorized, 40101, "authentication required")
			return
		}
		ctx.Next()
	}
}

// AdminRequired rejects API requests from non-admins with 403. Use after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !CurrentIdentity(ctx).Admin {
			utils.AbortError(ctx, http.StatusForbidden, 40301, "admin only")
			return
		}
		ctx.Next()
	}
}
