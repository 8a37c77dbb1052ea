package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/labeldispatch/internal/config"
)

const (
	cookieName           = "labeldispatch_auth"
	defaultTokenDuration = 12 * time.Hour
	issuer               = "labeldispatch"
)

type Claims struct {
	jwt.RegisteredClaims
	Authenticated bool `json:"authenticated"`
}

// AuthMiddleware guards the control endpoints with a single operator
// account whose bcrypt hash comes from configuration. Without a hash every
// protected route is refused.
type AuthMiddleware struct {
	username      string
	passwordHash  []byte
	secret        []byte
	tokenDuration time.Duration
	now           func() time.Time
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

func NewAuthMiddleware(cfg config.ControlConfig) *AuthMiddleware {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenDuration
	}
	return &AuthMiddleware{
		username:      cfg.Username,
		passwordHash:  []byte(cfg.PasswordHash),
		secret:        []byte(cfg.JWTSecret),
		tokenDuration: ttl,
		now:           time.Now,
	}
}

func (a *AuthMiddleware) enabled() bool {
	return len(a.passwordHash) > 0 && len(a.secret) > 0
}

func (a *AuthMiddleware) generateToken(subject string) (string, error) {
	now := a.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenDuration)),
			Issuer:    issuer,
		},
		Authenticated: true,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

func (a *AuthMiddleware) getTokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}

func (a *AuthMiddleware) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Success: false, Message: "Invalid request"})
		return
	}

	if !a.enabled() {
		c.JSON(http.StatusForbidden, LoginResponse{Success: false, Message: "Control login is not configured"})
		return
	}

	if req.Username != "" && a.username != "" && req.Username != a.username {
		c.JSON(http.StatusUnauthorized, LoginResponse{Success: false, Message: "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, LoginResponse{Success: false, Message: "Invalid credentials"})
		return
	}

	token, err := a.generateToken(a.username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{Success: false, Message: "Failed to generate token"})
		return
	}

	c.SetCookie(cookieName, token, int(a.tokenDuration.Seconds()), "/", "", true, true)
	c.JSON(http.StatusOK, LoginResponse{Success: true, Token: token})
}

func (a *AuthMiddleware) LogoutHandler(c *gin.Context) {
	c.SetCookie(cookieName, "", -1, "/", "", true, true)
	c.JSON(http.StatusOK, LoginResponse{Success: true, Message: "Logged out"})
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.enabled() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Control access is not configured"})
			return
		}

		token := a.getTokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		claims, err := a.validateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		if !claims.Authenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}
