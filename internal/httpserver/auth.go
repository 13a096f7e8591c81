package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	contextKeyUserID    = "auth_user_id"
	contextKeyRole      = "auth_role"

	// roleOperator marks back-office tokens minted for the settlement and
	// onboarding collaborators. Player tokens carry no role claim.
	roleOperator = "operator"
)

// apiClaims extends the registered claim set with the caller's role.
type apiClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// authMiddleware validates the bearer token and pins the authenticated user
// id on the request context. Tokens are minted by an external identity
// collaborator; this layer only verifies them.
func (server *Server) authMiddleware() gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		header := ginContext.GetHeader(authorizationHeader)
		if !strings.HasPrefix(header, bearerPrefix) {
			abortWithError(ginContext, http.StatusUnauthorized, "missing_bearer_token", "missing bearer token")
			return
		}
		rawToken := strings.TrimPrefix(header, bearerPrefix)
		claims := &apiClaims{}
		parserOptions := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
		if server.cfg.TokenIssuer != "" {
			parserOptions = append(parserOptions, jwt.WithIssuer(server.cfg.TokenIssuer))
		}
		token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(server.cfg.SigningKey), nil
		}, parserOptions...)
		if err != nil || !token.Valid {
			abortWithError(ginContext, http.StatusUnauthorized, "invalid_token", "invalid bearer token")
			return
		}
		if claims.Subject == "" {
			abortWithError(ginContext, http.StatusUnauthorized, "invalid_token", "token carries no subject")
			return
		}
		ginContext.Set(contextKeyUserID, claims.Subject)
		ginContext.Set(contextKeyRole, claims.Role)
		ginContext.Next()
	}
}

// requireUser rejects requests whose token subject does not match the
// user-scoped path segment. Operator tokens pass for any user.
func requireUser(ginContext *gin.Context, pathUserID string) error {
	if isOperator(ginContext) {
		return nil
	}
	authenticated := ginContext.GetString(contextKeyUserID)
	if authenticated == "" || authenticated != pathUserID {
		return fmt.Errorf("user mismatch")
	}
	return nil
}

// requireOperator rejects any token that does not carry the operator role.
// Settlement reports money the player did not compute, so the bettor's own
// token is never enough.
func requireOperator(ginContext *gin.Context) error {
	if !isOperator(ginContext) {
		return fmt.Errorf("operator role required")
	}
	return nil
}

func isOperator(ginContext *gin.Context) bool {
	return ginContext.GetString(contextKeyRole) == roleOperator
}
