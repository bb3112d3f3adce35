package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/belay/backend/internal/accounts"
	"github.com/MarcoPoloResearchLab/belay/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/belay/backend/internal/chat"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "belay_user_id"

var (
	errMissingAccountsService = errors.New("accounts service dependency required")
	errMissingSessionStore    = errors.New("session store dependency required")
	errMissingChatService     = errors.New("chat service dependency required")
)

// Dependencies collects everything the HTTP layer needs. The chat core only
// ever receives the user id resolved by the session store.
type Dependencies struct {
	Accounts *accounts.Service
	Sessions auth.SessionStore
	Chat     *chat.Service
	Logger   *zap.Logger
	// StaticDir, when set, serves the bundled web client for unmatched routes.
	StaticDir string
}

// NewHTTPHandler assembles the gin engine with middleware and all API routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Accounts == nil {
		return nil, errMissingAccountsService
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionStore
	}
	if deps.Chat == nil {
		return nil, errMissingChatService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		chat:     deps.Chat,
		logger:   logger,
	}

	router.POST("/api/auth/register", handler.handleRegister)
	router.POST("/api/auth/login", handler.handleLogin)
	router.POST("/api/auth/logout", handler.handleLogout)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.POST("/users/update_username", handler.handleUpdateUsername)
	protected.POST("/users/update_password", handler.handleUpdatePassword)
	protected.GET("/channels", handler.handleListChannels)
	protected.POST("/channels", handler.handleCreateChannel)
	protected.GET("/unread", handler.handleUnreadCounts)
	protected.GET("/messages", handler.handleTopLevelMessages)
	protected.POST("/messages", handler.handlePostMessage)
	protected.GET("/messages/thread", handler.handleThread)
	protected.POST("/messages/read", handler.handleMarkRead)
	protected.POST("/reactions", handler.handleAddReaction)

	if deps.StaticDir != "" {
		registerStaticClient(router, deps.StaticDir)
	}

	return router, nil
}

type httpHandler struct {
	accounts *accounts.Service
	sessions auth.SessionStore
	chat     *chat.Service
	logger   *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := h.sessions.Resolve(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			h.logger.Error("session resolution failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func currentUserID(c *gin.Context) (uint, bool) {
	value, exists := c.Get(userIDContextKey)
	if !exists {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// renderError maps service sentinel errors to HTTP statuses and, when the
// failure carries an operation code, includes it for clients and log scrapers.
func (h *httpHandler) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrInvalidInput), errors.Is(err, accounts.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrDuplicateName), errors.Is(err, accounts.ErrDuplicateUsername):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, accounts.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, accounts.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthenticated):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}

	body := gin.H{"error": errorCode(err)}
	c.JSON(status, body)
}

func errorCode(err error) string {
	var chatErr *chat.ServiceError
	if errors.As(err, &chatErr) {
		return chatErr.Code()
	}
	var accountsErr *accounts.ServiceError
	if errors.As(err, &accountsErr) {
		return accountsErr.Code()
	}
	return "internal_error"
}

// registerStaticClient serves the single-page web client: exact file matches
// from the static directory, anything else falls back to index.html.
func registerStaticClient(router *gin.Engine, staticDir string) {
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		requested := filepath.Join(staticDir, filepath.Clean("/"+c.Request.URL.Path))
		if info, err := os.Stat(requested); err == nil && !info.IsDir() {
			c.File(requested)
			return
		}
		c.File(filepath.Join(staticDir, "index.html"))
	})
}
