package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"briefly-server/apierr"
	"briefly-server/models"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const (
	nonceMessagePrefix = "Sign this message to verify ownership of your wallet:\nNonce: "
	nonceTTL           = 10 * time.Minute
)

// Claims is the payload of a login token.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

type AuthService struct {
	DB     *gorm.DB
	Nonces NonceStore
	Secret []byte
	TTL    time.Duration
	Now    Clock
}

func NewAuthService(db *gorm.DB, nonces NonceStore, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthService{DB: db, Nonces: nonces, Secret: []byte(secret), TTL: ttl}
}

// NormalizeAddress validates an EVM address and returns its checksummed form.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) || !strings.HasPrefix(address, "0x") {
		return "", apierr.Validation("invalid wallet address")
	}
	return common.HexToAddress(address).Hex(), nil
}

// IssueNonce creates a fresh sign-in message for address, replacing any
// outstanding one.
func (s *AuthService) IssueNonce(ctx context.Context, address string) (string, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return "", err
	}
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", apierr.Internal("failed to generate nonce", err)
	}
	message := nonceMessagePrefix + n.String()
	if err := s.Nonces.Put(ctx, address, message, nonceTTL); err != nil {
		return "", apierr.Internal("failed to store nonce", err)
	}
	return message, nil
}

// Login consumes the outstanding nonce for address, checks the personal_sign
// signature over it and returns a bearer token.
func (s *AuthService) Login(ctx context.Context, address, signature string) (string, *models.Account, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return "", nil, err
	}
	message, err := s.Nonces.Take(ctx, address)
	if err != nil {
		return "", nil, apierr.Internal("failed to load nonce", err)
	}
	if message == "" {
		return "", nil, apierr.Validation("Request a nonce")
	}
	if !VerifySignature(address, message, signature) {
		return "", nil, apierr.Unauthorized("Invalid signature")
	}

	account, err := s.EnsureAccount(ctx, address)
	if err != nil {
		return "", nil, err
	}
	token, err := s.IssueToken(address)
	if err != nil {
		return "", nil, err
	}
	return token, account, nil
}

// VerifySignature reports whether signature is an EIP-191 personal_sign of
// message by address.
func VerifySignature(address, message, signature string) bool {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == common.HexToAddress(address)
}

func (s *AuthService) IssueToken(address string) (string, error) {
	now := s.Now.now()
	claims := Claims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", apierr.Internal("failed to sign token", err)
	}
	return token, nil
}

// ParseToken verifies a bearer token and returns its claims.
func (s *AuthService) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.Now.now))
	if err != nil {
		return nil, apierr.Unauthorized("invalid token")
	}
	if _, err := NormalizeAddress(claims.Address); err != nil {
		return nil, apierr.Unauthorized("invalid token")
	}
	return claims, nil
}

// EnsureAccount returns the account for address, creating it on first use.
func (s *AuthService) EnsureAccount(ctx context.Context, address string) (*models.Account, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	var account models.Account
	err = s.DB.WithContext(ctx).
		Where(models.Account{WalletAddress: address}).
		Attrs(models.Account{CreatedAt: s.Now.now()}).
		FirstOrCreate(&account).Error
	if err != nil {
		return nil, apierr.Internal("failed to load account", err)
	}
	return &account, nil
}

// Authenticate resolves a bearer token to its account.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (*models.Account, error) {
	claims, err := s.ParseToken(raw)
	if err != nil {
		return nil, err
	}
	return s.EnsureAccount(ctx, claims.Address)
}
