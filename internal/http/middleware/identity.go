package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-coin-ledger/internal/domain"
	"github.com/tbourn/go-coin-ledger/internal/services"
	"github.com/tbourn/go-coin-ledger/internal/sysutil"
)

// Development identity headers, honoured only when no JWT secret is set.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserName   = "X-User-Name"
	HeaderUserAdmin  = "X-User-Admin"
	HeaderUserBanned = "X-User-Banned"
)

const (
	ctxKeyUserID   = "userID"
	ctxKeyIdentity = "identity"
)

// Claims are the JWT claims issued by the auth collaborator. The subject is
// the user id.
type Claims struct {
	Name   string `json:"name"`
	Admin  bool   `json:"admin"`
	Banned bool   `json:"banned"`
	jwt.RegisteredClaims
}

// ProfileEnsurer opens the profile and coin account of a verified caller.
type ProfileEnsurer interface {
	Ensure(ctx context.Context, id services.Identity) (*domain.Profile, error)
}

// IdentityOptions configures Identify.
type IdentityOptions struct {
	// JWTSecret enables HS256 bearer tokens. When empty the development
	// X-User-* headers are trusted instead.
	JWTSecret string
}

var errBadToken = errors.New("invalid token")

// Identify resolves the caller, if any, and stores it in the Gin context
// under "identity" (and its id under "userID"). Anonymous requests pass
// through; a malformed or invalid bearer token is rejected with 401.
func Identify(opts IdentityOptions) gin.HandlerFunc {
	secret := []byte(opts.JWTSecret)
	return func(c *gin.Context) {
		var (
			id  services.Identity
			ok  bool
			err error
		)
		if len(secret) > 0 {
			id, ok, err = identityFromBearer(c.GetHeader("Authorization"), secret)
		} else {
			id, ok = identityFromHeaders(c)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "invalid_token",
				"message":    "invalid or expired token",
			})
			return
		}
		if ok {
			c.Set(ctxKeyIdentity, id)
			c.Set(ctxKeyUserID, id.UserID)
		}
		c.Next()
	}
}

// RequireUser rejects anonymous callers with 401 and banned callers with 403,
// then mirrors the identity into a profile and coin account.
func RequireUser(profiles ProfileEnsurer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "authentication required",
			})
			return
		}
		if id.IsBanned {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "banned",
				"message":    "user is banned",
			})
			return
		}
		if profiles != nil {
			if _, err := profiles.Ensure(c.Request.Context(), id); err != nil {
				LoggerFrom(c).Error().Err(err).Str("user_id", id.UserID).Msg("ensure profile failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"request_id": c.Writer.Header().Get(requestIDHeader),
					"code":       "internal_error",
					"message":    "internal server error",
				})
				return
			}
		}
		c.Next()
	}
}

// IdentityFrom returns the caller resolved by Identify.
func IdentityFrom(c *gin.Context) (services.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return services.Identity{}, false
	}
	id, ok := v.(services.Identity)
	return id, ok && id.UserID != ""
}

// SignToken issues an HS256 token for id. It is used by tests and local
// tooling; production tokens come from the auth collaborator.
func SignToken(secret string, id services.Identity, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = id.UserID
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name:             id.DisplayName,
		Admin:            id.IsAdmin,
		Banned:           id.IsBanned,
		RegisteredClaims: claims,
	})
	return tok.SignedString([]byte(secret))
}

func identityFromBearer(header string, secret []byte) (services.Identity, bool, error) {
	if header == "" {
		return services.Identity{}, false, nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return services.Identity{}, false, errBadToken
	}

	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return services.Identity{}, false, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return services.Identity{}, false, errBadToken
	}
	return services.Identity{
		UserID:      strings.TrimSpace(claims.Subject),
		DisplayName: claims.Name,
		IsAdmin:     claims.Admin,
		IsBanned:    claims.Banned,
	}, true, nil
}

func identityFromHeaders(c *gin.Context) (services.Identity, bool) {
	uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if uid == "" {
		return services.Identity{}, false
	}
	return services.Identity{
		UserID:      uid,
		DisplayName: strings.TrimSpace(c.GetHeader(HeaderUserName)),
		IsAdmin:     sysutil.IsTruthy(c.GetHeader(HeaderUserAdmin)),
		IsBanned:    sysutil.IsTruthy(c.GetHeader(HeaderUserBanned)),
	}, true
}
