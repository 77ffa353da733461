package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"meal-order-api/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

type Claims struct {
	UserID       uint `json:"user_id"`
	TokenVersion int  `json:"token_version"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Generate creates a signed JWT for a given user
func (t *Tokens) Generate(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:       user.ID,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *Tokens) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuedAt())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

const (
	userKey   = "user"
	claimsKey = "claims"
)

// bearerToken reads the token from the Authorization header, or from the
// access_token query parameter for clients that cannot set headers
// (browser WebSockets).
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("access_token")
}

// AuthRequired validates the JWT, loads the caller and injects both into
// the context. Tokens of deleted or signed-out users are rejected.
func AuthRequired(db *gorm.DB, tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required (Bearer <token>)"})
			return
		}
		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		var user models.User
		err = db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account no longer exists"})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong, please try again"})
			return
		}
		if user.TokenVersion != claims.TokenVersion {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session has ended, please sign in again"})
			return
		}

		c.Set(userKey, &user)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// AdminRequired lets only administrators through.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetUser(c)
		if user == nil || !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied. Administrators only"})
			return
		}
		c.Next()
	}
}

// GetUser returns the authenticated caller, or nil outside AuthRequired.
func GetUser(c *gin.Context) *models.User {
	val, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	return val.(*models.User)
}

// GetUserID extracts caller user ID from context
func GetUserID(c *gin.Context) uint {
	if user := GetUser(c); user != nil {
		return user.ID
	}
	return 0
}

// GetIssuedAt is when the caller's token was issued.
func GetIssuedAt(c *gin.Context) time.Time {
	val, ok := c.Get(claimsKey)
	if !ok {
		return time.Time{}
	}
	claims := val.(*Claims)
	if claims.IssuedAt == nil {
		return time.Time{}
	}
	return claims.IssuedAt.Time
}
