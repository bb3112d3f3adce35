package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/belay/backend/internal/accounts"
	"github.com/MarcoPoloResearchLab/belay/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/belay/backend/internal/chat"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:belay_server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&accounts.User{},
		&chat.Channel{},
		&chat.Message{},
		&chat.Reaction{},
		&chat.ReadCursor{},
		&auth.SessionRecord{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	accountService, err := accounts.NewService(accounts.ServiceConfig{
		Database:   db,
		BcryptCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("failed to construct account service: %v", err)
	}

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "belay-auth",
		Audience:      "belay-api",
		TokenTTL:      time.Hour,
	})
	sessionStore, err := auth.NewSessionStore(auth.SessionStoreConfig{
		Database: db,
		Issuer:   issuer,
	})
	if err != nil {
		t.Fatalf("failed to construct session store: %v", err)
	}

	chatService, err := chat.NewService(chat.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct chat service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Accounts: accountService,
		Sessions: sessionStore,
		Chat:     chatService,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return handler
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	var payload map[string]any
	if len(recorder.Body.Bytes()) > 0 && strings.HasPrefix(recorder.Body.String(), "{") {
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder, payload
}

func registerAndLogin(t *testing.T, handler http.Handler, username string) string {
	t.Helper()

	body := fmt.Sprintf(`{"username":%q,"password":"pw"}`, username)
	if recorder, _ := doJSON(t, handler, http.MethodPost, "/api/auth/register", "", body); recorder.Code != http.StatusOK {
		t.Fatalf("register failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	recorder, payload := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	token, ok := payload["token"].(string)
	if !ok || token == "" {
		t.Fatalf("expected a session token, got %v", payload)
	}
	return token
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	handler := newTestRouter(t)

	recorder, _ := doJSON(t, handler, http.MethodGet, "/api/channels", "", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestProtectedRoutesRejectRevokedToken(t *testing.T) {
	handler := newTestRouter(t)
	token := registerAndLogin(t, handler, "alice")

	if recorder, _ := doJSON(t, handler, http.MethodPost, "/api/auth/logout", token, ""); recorder.Code != http.StatusOK {
		t.Fatalf("logout failed with status %d", recorder.Code)
	}

	recorder, _ := doJSON(t, handler, http.MethodGet, "/api/channels", token, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", recorder.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	handler := newTestRouter(t)
	registerAndLogin(t, handler, "alice")

	recorder, _ := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"nope"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestCreateChannelDuplicateReturnsBadRequestWithCode(t *testing.T) {
	handler := newTestRouter(t)
	token := registerAndLogin(t, handler, "alice")

	if recorder, _ := doJSON(t, handler, http.MethodPost, "/api/channels", token, `{"name":"general"}`); recorder.Code != http.StatusOK {
		t.Fatalf("first create failed with status %d", recorder.Code)
	}

	recorder, payload := doJSON(t, handler, http.MethodPost, "/api/channels", token, `{"name":"general"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate, got %d", recorder.Code)
	}
	if payload["error"] != "chat.create_channel.duplicate_name" {
		t.Fatalf("expected service error code, got %v", payload["error"])
	}
}

func TestMessagesUnknownChannelReturnsNotFound(t *testing.T) {
	handler := newTestRouter(t)
	token := registerAndLogin(t, handler, "alice")

	recorder, _ := doJSON(t, handler, http.MethodGet, "/api/messages?channel_id=42", token, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestMessagesMissingChannelIDReturnsBadRequest(t *testing.T) {
	handler := newTestRouter(t)
	token := registerAndLogin(t, handler, "alice")

	recorder, _ := doJSON(t, handler, http.MethodGet, "/api/messages", token, "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestChannelListingIncludesUnreadCounts(t *testing.T) {
	handler := newTestRouter(t)
	alice := registerAndLogin(t, handler, "alice")
	bob := registerAndLogin(t, handler, "bob")

	if recorder, _ := doJSON(t, handler, http.MethodPost, "/api/channels", alice, `{"name":"general"}`); recorder.Code != http.StatusOK {
		t.Fatalf("channel create failed with status %d", recorder.Code)
	}
	if recorder, _ := doJSON(t, handler, http.MethodPost, "/api/messages", alice, `{"channel_id":1,"content":"hi"}`); recorder.Code != http.StatusOK {
		t.Fatalf("post failed with status %d", recorder.Code)
	}

	request := httptest.NewRequest(http.MethodGet, "/api/channels", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+bob)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("listing failed with status %d", recorder.Code)
	}

	var channels []struct {
		ID          uint   `json:"id"`
		Name        string `json:"name"`
		UnreadCount int64  `json:"unread_count"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &channels); err != nil {
		t.Fatalf("failed to decode channel list: %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(channels))
	}
	if channels[0].Name != "general" || channels[0].UnreadCount != 1 {
		t.Fatalf("unexpected channel payload: %+v", channels[0])
	}
}

func TestUpdateUsernameConflict(t *testing.T) {
	handler := newTestRouter(t)
	alice := registerAndLogin(t, handler, "alice")
	registerAndLogin(t, handler, "bob")

	recorder, _ := doJSON(t, handler, http.MethodPost, "/api/users/update_username", alice, `{"new_username":"bob"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for taken username, got %d", recorder.Code)
	}
}
