package services

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"testing"
	"time"

	"briefly-server/apierr"
	"briefly-server/models"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personalSign(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func newTestAuth(t *testing.T) (*AuthService, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	nonces := NewMemoryNonceStore()
	nonces.now = clock.Now
	svc := NewAuthService(newTestDB(t), nonces, "test-secret", time.Hour)
	svc.Now = clock.Now
	return svc, clock
}

func TestNormalizeAddress(t *testing.T) {
	addr, err := NormalizeAddress("0x52908400098527886e0f7030069857d2e4169ee7")
	require.NoError(t, err)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", addr)

	for _, bad := range []string{"", "0x1234", "52908400098527886e0f7030069857d2e4169ee7", "not-an-address"} {
		_, err := NormalizeAddress(bad)
		assert.True(t, apierr.Is(err, apierr.KindValidation), bad)
	}
}

func TestLogin_SignedNonce(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	message, err := svc.IssueNonce(ctx, strings.ToLower(address))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(message, "Sign this message to verify ownership of your wallet:\nNonce: "))

	token, account, err := svc.Login(ctx, address, personalSign(t, key, message))
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, address, account.WalletAddress)

	authed, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, authed.ID)

	var count int64
	require.NoError(t, svc.DB.Model(&models.Account{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLogin_NonceIsSingleUse(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	message, err := svc.IssueNonce(ctx, address)
	require.NoError(t, err)
	sig := personalSign(t, key, message)

	_, _, err = svc.Login(ctx, address, sig)
	require.NoError(t, err)
	_, _, err = svc.Login(ctx, address, sig)
	assert.True(t, apierr.Is(err, apierr.KindValidation))
}

func TestLogin_RejectsForeignSignature(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()
	owner, err := crypto.GenerateKey()
	require.NoError(t, err)
	attacker, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(owner.PublicKey).Hex()

	message, err := svc.IssueNonce(ctx, address)
	require.NoError(t, err)
	_, _, err = svc.Login(ctx, address, personalSign(t, attacker, message))
	assert.True(t, apierr.Is(err, apierr.KindUnauthorized))

	// The failed attempt consumed the nonce.
	_, _, err = svc.Login(ctx, address, personalSign(t, owner, message))
	assert.True(t, apierr.Is(err, apierr.KindValidation))
}

func TestLogin_ExpiredNonce(t *testing.T) {
	svc, clock := newTestAuth(t)
	ctx := context.Background()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	message, err := svc.IssueNonce(ctx, address)
	require.NoError(t, err)
	clock.Advance(11 * time.Minute)

	_, _, err = svc.Login(ctx, address, personalSign(t, key, message))
	assert.True(t, apierr.Is(err, apierr.KindValidation))
}

func TestVerifySignature_Malformed(t *testing.T) {
	address := "0x52908400098527886E0F7030069857D2E4169EE7"
	assert.False(t, VerifySignature(address, "hello", ""))
	assert.False(t, VerifySignature(address, "hello", "0x1234"))
	assert.False(t, VerifySignature(address, "hello", "zz"))
}

func TestParseToken(t *testing.T) {
	svc, clock := newTestAuth(t)
	address := "0x52908400098527886E0F7030069857D2E4169EE7"

	token, err := svc.IssueToken(address)
	require.NoError(t, err)
	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, address, claims.Address)
	assert.Equal(t, address, claims.Subject)

	other := NewAuthService(svc.DB, NewMemoryNonceStore(), "other-secret", time.Hour)
	_, err = other.ParseToken(token)
	assert.True(t, apierr.Is(err, apierr.KindUnauthorized))

	clock.Advance(2 * time.Hour)
	_, err = svc.ParseToken(token)
	assert.True(t, apierr.Is(err, apierr.KindUnauthorized))

	_, err = svc.ParseToken("garbage")
	assert.True(t, apierr.Is(err, apierr.KindUnauthorized))
}

func TestMemoryNonceStore(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryNonceStore()
	store.now = clock.Now
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "0xABC", "first", time.Minute))
	require.NoError(t, store.Put(ctx, "0xabc", "second", time.Minute))

	v, err := store.Take(ctx, "0xAbC")
	require.NoError(t, err)
	assert.Equal(t, "second", v)

	v, err = store.Take(ctx, "0xabc")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, store.Put(ctx, "0xdef", "late", time.Minute))
	clock.Advance(2 * time.Minute)
	v, err = store.Take(ctx, "0xdef")
	require.NoError(t, err)
	assert.Empty(t, v)
}
