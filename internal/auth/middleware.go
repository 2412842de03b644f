package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	ClaimsKey           = "claims"
	SubjectIDKey        = "subject_id"
	RolesKey            = "roles"
)

type AuthMiddleware struct {
	jwtManager *JWTManager
	logger     *zap.Logger
}

func NewAuthMiddleware(jwtManager *JWTManager, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		logger:     logger,
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := am.extractToken(c)
		if token == "" {
			am.logger.Warn("Authentication required but no token provided",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		claims, err := am.jwtManager.ValidateToken(token)
		if err != nil {
			am.logger.Warn("Invalid token provided",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		am.setClaims(c, claims)
		c.Next()
	}
}

func (am *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		if !claims.HasAnyRole(roles) {
			am.logger.Warn("Insufficient permissions",
				zap.String("subject_id", claims.SubjectID),
				zap.Strings("subject_roles", claims.Roles),
				zap.Strings("required_roles", roles))
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return am.RequireRole(RoleAdmin)
}

func (am *AuthMiddleware) RequireHelper() gin.HandlerFunc {
	return am.RequireRole(RoleHelper, RoleAdmin)
}

func (am *AuthMiddleware) RequireRequester() gin.HandlerFunc {
	return am.RequireRole(RoleRequester, RoleAdmin)
}

func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := am.extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := am.jwtManager.ValidateToken(token)
		if err != nil {
			am.logger.Debug("Optional auth failed", zap.Error(err))
			c.Next()
			return
		}

		am.setClaims(c, claims)
		c.Next()
	}
}

func (am *AuthMiddleware) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if authHeader == "" {
		return ""
	}

	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return ""
	}

	return strings.TrimPrefix(authHeader, BearerPrefix)
}

func (am *AuthMiddleware) setClaims(c *gin.Context, claims *Claims) {
	c.Set(ClaimsKey, claims)
	c.Set(SubjectIDKey, claims.SubjectID)
	c.Set(RolesKey, claims.Roles)
}

func GetClaims(c *gin.Context) *Claims {
	claims, exists := c.Get(ClaimsKey)
	if !exists {
		return nil
	}

	claimsTyped, ok := claims.(*Claims)
	if !ok {
		return nil
	}

	return claimsTyped
}

func GetSubjectID(c *gin.Context) string {
	subjectID, exists := c.Get(SubjectIDKey)
	if !exists {
		return ""
	}

	subjectIDStr, ok := subjectID.(string)
	if !ok {
		return ""
	}

	return subjectIDStr
}

func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get(RolesKey)
	if !exists {
		return []string{}
	}

	rolesSlice, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesSlice
}
