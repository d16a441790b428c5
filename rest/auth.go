package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

const userKey = "userId"

// Claims is the JWT payload issued by the auth service. payd only verifies;
// signup, login and password reset live elsewhere.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.StandardClaims
}

func (s *Server) authenticate(ctx *gin.Context) {
	token, err := ctx.Cookie("token")
	if err != nil || token == "" {
		header := ctx.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "Access denied. No token provided.",
		})
		return
	}

	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !parsed.Valid || claims.UserID == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "Invalid or expired token.",
		})
		return
	}

	ctx.Set(userKey, claims.UserID)
	ctx.Next()
}

func userID(ctx *gin.Context) string {
	return ctx.GetString(userKey)
}
