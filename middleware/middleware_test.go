package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"briefly-server/apierr"
	"briefly-server/logger"
	"briefly-server/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenAuth map[string]*models.Account

func (a tokenAuth) Authenticate(_ context.Context, token string) (*models.Account, error) {
	if token == "explode" {
		return nil, apierr.Internal("db down", errors.New("connection refused"))
	}
	account, ok := a[token]
	if !ok {
		return nil, apierr.Unauthorized("invalid token")
	}
	return account, nil
}

type memberAccess map[int64][]int64

func (m memberAccess) CanJoin(_ context.Context, groupID, accountID int64) error {
	for _, id := range m[groupID] {
		if id == accountID {
			return nil
		}
	}
	return apierr.Forbidden("not a participant")
}

var testAuth = tokenAuth{"good": {ID: 7, WalletAddress: "0x0000000000000000000000000000000000000007"}}

func TestEnsureUser(t *testing.T) {
	app := fiber.New()
	app.Get("/me", EnsureUser(testAuth, logger.Nop()), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": Account(c).ID})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", fiber.StatusUnauthorized},
		{"not bearer", "Basic abc", fiber.StatusUnauthorized},
		{"unknown token", "Bearer nope", fiber.StatusUnauthorized},
		{"lookup failure", "Bearer explode", fiber.StatusInternalServerError},
		{"valid", "Bearer good", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestEnsureAdmin(t *testing.T) {
	app := fiber.New()
	app.Post("/approve", EnsureAdmin("s3cret", logger.Nop()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for header, want := range map[string]int{
		"":       fiber.StatusUnauthorized,
		"wrong":  fiber.StatusUnauthorized,
		"s3cret": fiber.StatusNoContent,
	} {
		req := httptest.NewRequest("POST", "/approve", nil)
		if header != "" {
			req.Header.Set(AdminSecretHeader, header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, "header %q", header)
	}
}

func TestRateLimit(t *testing.T) {
	app := fiber.New()
	app.Get("/nonce", RateLimit(0.001, 2), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/nonce", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests}, codes)
}

func TestWSAuth(t *testing.T) {
	access := memberAccess{1: {7}}
	app := fiber.New()
	app.Get("/ws", WSAuth(testAuth, access, logger.Nop()), func(c *fiber.Ctx) error {
		assert.Equal(t, int64(1), c.Locals(GroupIDLocalsKey))
		return c.SendStatus(fiber.StatusNoContent)
	})

	upgrade := func(target string) int {
		req := httptest.NewRequest("GET", target, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/ws?groupId=1&userId=7&token=good", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	assert.Equal(t, fiber.StatusBadRequest, upgrade("/ws?groupId=1&token=good"))
	assert.Equal(t, fiber.StatusUnauthorized, upgrade("/ws?groupId=1&userId=8&token=good"))
	assert.Equal(t, fiber.StatusUnauthorized, upgrade("/ws?groupId=1&userId=7&token=bad"))
	assert.Equal(t, fiber.StatusForbidden, upgrade("/ws?groupId=2&userId=7&token=good"))
	assert.Equal(t, fiber.StatusNoContent, upgrade("/ws?groupId=1&userId=7&token=good"))
}
