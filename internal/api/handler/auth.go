package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Token roles.
const (
	RoleRuntime = "runtime"
	RoleAdmin   = "admin"
)

const issuer = "rpworld-backend"

// GenerateToken signs a bearer token. actorID is the staff character for
// admin tokens and 0 for runtime tokens.
func GenerateToken(secret []byte, role string, actorID uint, ttl time.Duration) (string, error) {
	if role != RoleRuntime && role != RoleAdmin {
		return "", fmt.Errorf("unknown role %q", role)
	}
	claims := jwt.MapClaims{
		"jti":  uuid.NewString(),
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
		"iss":  issuer,
	}
	if role == RoleAdmin {
		claims["actor_id"] = actorID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken validates a token and returns its role and actor id.
func ParseToken(secret []byte, tokenString string) (string, uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", 0, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", 0, errors.New("unexpected claims type")
	}
	role, _ := claims["role"].(string)
	if role != RoleRuntime && role != RoleAdmin {
		return "", 0, fmt.Errorf("unknown role %q", role)
	}
	var actorID uint
	if role == RoleAdmin {
		id, ok := claims["actor_id"].(float64)
		if !ok || id <= 0 {
			return "", 0, errors.New("admin token without actor_id")
		}
		actorID = uint(id)
	}
	return role, actorID, nil
}

// requireRole rejects requests without a valid bearer token of role.
func (h *Handler) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
			return
		}
		got, actorID, err := ParseToken(h.Secret, tokenString)
		if err != nil || got != role {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		c.Set("actor_id", actorID)
		c.Next()
	}
}
