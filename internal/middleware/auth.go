package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"p2p/internal/model"
	"p2p/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const actorKey = "actor"

var errInvalidClaims = errors.New("invalid token claims")

// IssueToken signs an HS256 token carrying the user id and role.
func IssueToken(secret []byte, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}

// ParseToken validates tokenString and returns the actor it identifies.
func ParseToken(secret []byte, tokenString string) (model.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return model.Actor{}, err
	}
	if !token.Valid {
		return model.Actor{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.Actor{}, errInvalidClaims
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: sub is not a user id", errInvalidClaims)
	}
	role, _ := claims["role"].(string)
	if !model.IsValidRole(role) {
		return model.Actor{}, fmt.Errorf("%w: unknown role %q", errInvalidClaims, role)
	}
	return model.Actor{UserID: userID, Role: role}, nil
}

func tokenFromRequest(c *gin.Context) (string, error) {
	// Try cookie first, fallback to Authorization header
	if tokenString, err := c.Cookie("access_token"); err == nil && tokenString != "" {
		return tokenString, nil
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization is missing")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization format. Expected 'Bearer <token>'")
	}
	return parts[1], nil
}

// Authenticate resolves the caller's identity from the JWT and stores it on the context.
// Role checks are left to the services' access policy.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
			return
		}

		actor, err := ParseToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}

		c.Set(actorKey, actor)
		c.Set("userID", actor.UserID.String())
		c.Set("userRole", actor.Role)
		c.Next()
	}
}

// ActorFrom returns the identity stored by Authenticate.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
