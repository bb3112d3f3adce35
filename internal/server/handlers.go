package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if _, err := h.accounts.Register(c.Request.Context(), request.Username, request.Password); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.accounts.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.renderError(c, err)
		return
	}

	token, err := h.sessions.Create(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("session creation failed", zap.Error(err), zap.Uint("user_id", user.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_create_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}

// handleLogout always reports success: revoking an absent or invalid token is
// a no-op, matching the idempotent logout contract clients rely on.
func (h *httpHandler) handleLogout(c *gin.Context) {
	if token, ok := bearerToken(c); ok {
		if err := h.sessions.Revoke(c.Request.Context(), token); err != nil {
			h.logger.Error("session revocation failed", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type updateUsernamePayload struct {
	NewUsername string `json:"new_username"`
}

func (h *httpHandler) handleUpdateUsername(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request updateUsernamePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.accounts.UpdateUsername(c.Request.Context(), userID, request.NewUsername); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type updatePasswordPayload struct {
	NewPassword string `json:"new_password"`
}

func (h *httpHandler) handleUpdatePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request updatePasswordPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.accounts.UpdatePassword(c.Request.Context(), userID, request.NewPassword); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type channelPayload struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	UnreadCount int64  `json:"unread_count"`
}

// handleListChannels merges the channel registry with the caller's unread
// counts so the client renders both from a single round trip.
func (h *httpHandler) handleListChannels(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	channels, err := h.chat.ListChannels(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	unread, err := h.chat.UnreadCounts(c.Request.Context(), userID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	response := make([]channelPayload, 0, len(channels))
	for _, channel := range channels {
		response = append(response, channelPayload{
			ID:          channel.ID,
			Name:        channel.Name,
			UnreadCount: unread[channel.ID],
		})
	}
	c.JSON(http.StatusOK, response)
}

type createChannelPayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateChannel(c *gin.Context) {
	var request createChannelPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	channel, err := h.chat.CreateChannel(c.Request.Context(), request.Name)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": channel.ID})
}

func (h *httpHandler) handleUnreadCounts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	counts, err := h.chat.UnreadCounts(c.Request.Context(), userID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, counts)
}

func (h *httpHandler) handleTopLevelMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	channelID, ok := queryID(c, "channel_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel_id is required"})
		return
	}

	messages, err := h.chat.TopLevelMessages(c.Request.Context(), userID, channelID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

type postMessagePayload struct {
	ChannelID uint   `json:"channel_id"`
	Content   string `json:"content"`
	RepliesTo *uint  `json:"replies_to"`
}

func (h *httpHandler) handlePostMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request postMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	messageID, err := h.chat.PostMessage(c.Request.Context(), userID, request.ChannelID, request.Content, request.RepliesTo)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message_id": messageID})
}

func (h *httpHandler) handleThread(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	parentID, ok := queryID(c, "parent_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parent_id is required"})
		return
	}

	thread, err := h.chat.Thread(c.Request.Context(), userID, parentID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, thread)
}

type markReadPayload struct {
	ChannelID uint `json:"channel_id"`
	MessageID uint `json:"message_id"`
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request markReadPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.chat.MarkRead(c.Request.Context(), userID, request.ChannelID, request.MessageID); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type addReactionPayload struct {
	MessageID uint   `json:"message_id"`
	Emoji     string `json:"emoji"`
}

func (h *httpHandler) handleAddReaction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request addReactionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.chat.AddReaction(c.Request.Context(), userID, request.MessageID, request.Emoji); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func queryID(c *gin.Context, name string) (uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}
