package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"ridehail/internal/domain"
	"ridehail/internal/realtime"
)

// Context keys set by Authenticator.Middleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

var errInvalidToken = errors.New("invalid token")

// Claims are the JWT claims issued to riders, drivers and admins.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for userID valid for ttl.
func (a *Authenticator) Issue(userID string, role domain.Role, ttl time.Duration) (string, error) {
	now := a.now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies a token and returns its claims.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(a.now)}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, errInvalidToken
	}
	switch claims.Role {
	case domain.RoleRider, domain.RoleDriver, domain.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", errInvalidToken, claims.Role)
	}
	return claims, nil
}

// Identity resolves a websocket handshake token.
func (a *Authenticator) Identity(token string) (realtime.Identity, error) {
	claims, err := a.Parse(token)
	if err != nil {
		return realtime.Identity{}, err
	}
	return realtime.Identity{UserID: claims.UserID, Role: string(claims.Role)}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's user ID and role on the context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := a.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole allows only the listed roles through. Must run after Middleware.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

// CallerID returns the authenticated user ID.
func CallerID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// CallerRole returns the authenticated role.
func CallerRole(c *gin.Context) domain.Role {
	if v, ok := c.Get(ContextRole); ok {
		if r, ok := v.(domain.Role); ok {
			return r
		}
	}
	return ""
}
