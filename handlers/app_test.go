package handlers

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"briefly-server/chain"
	"briefly-server/database"
	"briefly-server/logger"
	"briefly-server/middleware"
	"briefly-server/models"
	"briefly-server/services"
	"briefly-server/utils"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testAdminSecret = "admin-secret"

type testServer struct {
	app *fiber.App
	db  *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, database.DriverSQLite))

	log := logger.Nop()
	hub := services.NewChatHub(log)
	chat := services.NewChatService(db, hub)
	requests := services.NewRequestService(db, time.Hour, nil, log)
	requests.Chat = chat

	app := NewApp(AppOptions{
		Log:            log,
		DB:             db,
		AdminSecret:    testAdminSecret,
		MaxUploadBytes: 1024,
		Auth:           services.NewAuthService(db, services.NewMemoryNonceStore(), "jwt-secret", time.Hour),
		Lawyers:        services.NewLawyerService(db, chain.Disabled{}, services.DisabledMatcher{}, services.DisabledMatcher{}, log),
		Requests:       requests,
		Escrow:         services.NewEscrowService(db, chain.Disabled{}, utils.NewMemoryStore(), chat, nil, log),
		Chat:           chat,
		Hub:            hub,
		Blobs:          utils.NewMemoryStore(),
	})
	return &testServer{app: app, db: db}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) call(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(t, req)
}

// login runs the nonce + signature flow and returns a bearer token.
func (s *testServer) login(t *testing.T, key *ecdsa.PrivateKey) (string, int64) {
	t.Helper()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	status, env := s.call(t, "GET", "/api/v1/auth/nonce?address="+url.QueryEscape(address), "", nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	var nonce struct {
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &nonce))

	sig, err := crypto.Sign(accounts.TextHash([]byte(nonce.Nonce)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	status, env = s.call(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"address":   address,
		"signature": hexutil.Encode(sig),
	})
	require.Equal(t, fiber.StatusOK, status, env.Error)
	var out struct {
		Token   string         `json:"token"`
		Account models.Account `json:"account"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out.Token, out.Account.ID
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthErrors(t *testing.T) {
	s := newTestServer(t)

	status, env := s.call(t, "GET", "/api/v1/auth/nonce?address=nope", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.False(t, env.Success)

	status, _ = s.call(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"address":   "0x52908400098527886E0F7030069857D2E4169EE7",
		"signature": "0x00",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.call(t, "GET", "/api/v1/groups/requests/sent", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = s.call(t, "GET", "/api/v1/groups/requests/sent", "not-a-token", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAdminApprovalRequiresSecret(t *testing.T) {
	s := newTestServer(t)
	status, env := s.call(t, "POST", "/api/v1/lawyers/1/approve", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Missing admin secret header", env.Error)

	req := httptest.NewRequest("POST", "/api/v1/lawyers/1/approve", nil)
	req.Header.Set(middleware.AdminSecretHeader, "wrong")
	status, env = s.do(t, req)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized: Invalid admin secret", env.Error)
}

func TestRequestLifecycle(t *testing.T) {
	s := newTestServer(t)

	lawyerToken, lawyerID := s.login(t, newKey(t))
	clientToken, clientID := s.login(t, newKey(t))
	require.NotEqual(t, lawyerID, clientID)

	status, env := s.call(t, "POST", "/api/v1/lawyers/request", lawyerToken, map[string]any{
		"name":            "Ada Lovelace",
		"bio":             "Ten years advising early stage companies.",
		"expertise":       "Corporate law",
		"jurisdictions":   []string{"Delaware"},
		"consultationFee": "150",
	})
	require.Equal(t, fiber.StatusCreated, status, env.Error)

	approve := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/lawyers/%d/approve", lawyerID), nil)
	approve.Header.Set(middleware.AdminSecretHeader, testAdminSecret)
	status, env = s.do(t, approve)
	require.Equal(t, fiber.StatusOK, status, env.Error)

	group := models.LawyerGroup{GroupName: "Startup counsel", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.db.Omit("Members").Create(&group).Error)
	require.NoError(t, s.db.Omit("Lawyer").Create(&models.LawyerGroupMember{
		GroupID: group.ID, LawyerAccount: lawyerID, RelevanceScore: 9, RoleInGroup: "Lead",
	}).Error)

	// Not yet a participant.
	status, _ = s.call(t, "GET", fmt.Sprintf("/api/v1/groups/%d/messages", group.ID), clientToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, env = s.call(t, "POST", "/api/v1/groups/request", clientToken, map[string]any{
		"groupId":          group.ID,
		"currentSituation": "Founding a company with two partners",
		"futurePlans":      "Raise a seed round next year",
	})
	require.Equal(t, fiber.StatusCreated, status, env.Error)
	var created models.GroupRequest
	require.NoError(t, json.Unmarshal(env.Data, &created))

	status, _ = s.call(t, "POST", "/api/v1/groups/request", clientToken, map[string]any{
		"groupId":          group.ID,
		"currentSituation": "Founding a company with two partners",
		"futurePlans":      "Raise a seed round next year",
	})
	assert.Equal(t, fiber.StatusConflict, status)

	status, env = s.call(t, "GET", "/api/v1/groups/requests/pending", lawyerToken, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	var pending []services.RequestView
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)

	status, env = s.call(t, "POST", fmt.Sprintf("/api/v1/groups/requests/%d/respond", created.ID), lawyerToken, map[string]string{"response": "accepted"})
	require.Equal(t, fiber.StatusOK, status, env.Error)
	var res services.RespondResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.RequestStatusAccepted, res.RequestStatus)

	status, env = s.call(t, "GET", "/api/v1/groups/requests/sent", clientToken, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	var sent []services.RequestView
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	require.Len(t, sent, 1)
	assert.Equal(t, models.RequestStatusAccepted, sent[0].Status)

	status, env = s.call(t, "POST", fmt.Sprintf("/api/v1/groups/%d/messages", group.ID), clientToken, map[string]string{"content": "Hello counsel"})
	require.Equal(t, fiber.StatusCreated, status, env.Error)

	status, env = s.call(t, "GET", fmt.Sprintf("/api/v1/groups/%d/messages", group.ID), lawyerToken, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	var msgs []models.GroupMessage
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, models.MessageTypeSystem, msgs[0].MessageType)
	assert.Equal(t, "Hello counsel", msgs[1].MessageContent)
}

func TestUploadLimits(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login(t, newKey(t))

	upload := func(size int) int {
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		part, err := form.CreateFormFile("file", "notes.txt")
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte("a"), size))
		require.NoError(t, err)
		require.NoError(t, form.Close())

		req := httptest.NewRequest("POST", "/api/v1/upload", &body)
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		status, _ := s.do(t, req)
		return status
	}

	assert.Equal(t, fiber.StatusOK, upload(512))
	assert.Equal(t, fiber.StatusBadRequest, upload(2048))
}

func TestChatSocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.call(t, "GET", "/ws/group-chat?groupId=1&userId=1&token=x", "", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, status)
}
