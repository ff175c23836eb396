package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	contextUserIDKey    = "user_id"
)

// authMiddleware validates the bearer token and stores the subject claim as
// the authenticated user id.
func authMiddleware(signingKey string, issuer string) gin.HandlerFunc {
	keyFunc := func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(signingKey), nil
	}
	parserOptions := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(issuer))
	}

	return func(ctx *gin.Context) {
		header := ctx.GetHeader(authorizationHeader)
		if !strings.HasPrefix(header, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		raw := strings.TrimPrefix(header, bearerPrefix)

		claims := jwt.MapClaims{}
		token, parseErr := jwt.ParseWithClaims(raw, claims, keyFunc, parserOptions...)
		if parseErr != nil || !token.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token"))
			return
		}
		subject, subjectErr := claims.GetSubject()
		if subjectErr != nil || subject == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "token has no subject"))
			return
		}
		ctx.Set(contextUserIDKey, subject)
		ctx.Next()
	}
}

func authenticatedUserID(ctx *gin.Context) string {
	value, exists := ctx.Get(contextUserIDKey)
	if !exists {
		return ""
	}
	userID, _ := value.(string)
	return userID
}
