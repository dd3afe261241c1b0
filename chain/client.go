// Package chain talks to the escrow orchestrator, per-group escrow and
// lawyer identity contracts over JSON-RPC.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"briefly-server/metrics"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

var (
	ErrDisabled = errors.New("chain client is not configured")
	ErrReverted = errors.New("transaction reverted")
	ErrNoEvent  = errors.New("expected event not found in receipt")
)

type Config struct {
	RPCURL                string
	ChainID               int64
	PrivateKey            string
	OrchestratorAddress   string
	LawyerIdentityAddress string
	PaymentTokenDecimals  int32
}

// Client signs every write with the server key and blocks until the
// transaction is mined.
type Client struct {
	eth          *ethclient.Client
	key          *ecdsa.PrivateKey
	chainID      *big.Int
	decimals     int32
	orchestrator *bind.BoundContract
	identity     *bind.BoundContract
	escrowABI    abi.ABI
	orchABI      abi.ABI
	identityABI  abi.ABI
}

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" || cfg.PrivateKey == "" || cfg.OrchestratorAddress == "" {
		return nil, ErrDisabled
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = eth.ChainID(ctx); err != nil {
			eth.Close()
			return nil, fmt.Errorf("query chain id: %w", err)
		}
	}

	c := &Client{eth: eth, key: key, chainID: chainID, decimals: cfg.PaymentTokenDecimals}
	if c.orchABI, err = abi.JSON(strings.NewReader(orchestratorABI)); err != nil {
		return nil, fmt.Errorf("parse orchestrator abi: %w", err)
	}
	if c.escrowABI, err = abi.JSON(strings.NewReader(escrowABI)); err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	if c.identityABI, err = abi.JSON(strings.NewReader(lawyerIdentityABI)); err != nil {
		return nil, fmt.Errorf("parse identity abi: %w", err)
	}

	c.orchestrator = c.bound(common.HexToAddress(cfg.OrchestratorAddress), c.orchABI)
	if cfg.LawyerIdentityAddress != "" {
		c.identity = c.bound(common.HexToAddress(cfg.LawyerIdentityAddress), c.identityABI)
	}
	return c, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) bound(addr common.Address, parsed abi.ABI) *bind.BoundContract {
	return bind.NewBoundContract(addr, parsed, c.eth, c.eth, c.eth)
}

func (c *Client) escrow(address string) (*bind.BoundContract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid escrow address %q", address)
	}
	return c.bound(common.HexToAddress(address), c.escrowABI), nil
}

// transact sends method and waits for a successful receipt.
func (c *Client) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (*types.Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s (%s): %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s (%s): %w", method, tx.Hash().Hex(), ErrReverted)
	}
	return receipt, nil
}

// findEvent unpacks the first log in receipt emitted by contract for event.
func findEvent(receipt *types.Receipt, contract *bind.BoundContract, parsed abi.ABI, event string, out interface{}) error {
	id := parsed.Events[event].ID
	for _, l := range receipt.Logs {
		if l == nil || len(l.Topics) == 0 || l.Topics[0] != id {
			continue
		}
		return contract.UnpackLog(out, event, *l)
	}
	return fmt.Errorf("%s: %w", event, ErrNoEvent)
}

// DeployEscrowForGroup asks the orchestrator for a new escrow and returns its
// address.
func (c *Client) DeployEscrowForGroup(ctx context.Context, groupID int64) (address string, err error) {
	defer func() { metrics.ObserveChainCall("deployEscrowForGroup", err) }()

	receipt, err := c.transact(ctx, c.orchestrator, "deployEscrowForGroup", big.NewInt(groupID))
	if err != nil {
		return "", err
	}
	var ev struct {
		GroupId *big.Int
		Escrow  common.Address
	}
	if err := findEvent(receipt, c.orchestrator, c.orchABI, "EscrowDeployed", &ev); err != nil {
		return "", err
	}
	return ev.Escrow.Hex(), nil
}

// AddDocument registers a document on the group's escrow and returns the
// on-chain document id.
func (c *Client) AddDocument(ctx context.Context, escrowAddress, documentHash string, price decimal.Decimal, payee string, groupID int64) (documentID string, err error) {
	defer func() { metrics.ObserveChainCall("addDocument", err) }()

	escrow, err := c.escrow(escrowAddress)
	if err != nil {
		return "", err
	}
	if !common.IsHexAddress(payee) {
		return "", fmt.Errorf("invalid payee address %q", payee)
	}
	units, err := ToTokenUnits(price, c.decimals)
	if err != nil {
		return "", err
	}

	receipt, err := c.transact(ctx, escrow, "addDocument", documentHash, units, common.HexToAddress(payee), big.NewInt(groupID))
	if err != nil {
		return "", err
	}
	var ev struct {
		DocumentId *big.Int
		Payee      common.Address
		Price      *big.Int
	}
	if err := findEvent(receipt, escrow, c.escrowABI, "DocumentAdded", &ev); err != nil {
		return "", err
	}
	return ev.DocumentId.String(), nil
}

// MakePayment pays for a document and returns the transaction hash.
func (c *Client) MakePayment(ctx context.Context, escrowAddress, documentID string) (txHash string, err error) {
	defer func() { metrics.ObserveChainCall("makePayment", err) }()

	escrow, err := c.escrow(escrowAddress)
	if err != nil {
		return "", err
	}
	id, err := ParseID(documentID)
	if err != nil {
		return "", err
	}
	receipt, err := c.transact(ctx, escrow, "makePayment", id)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// IsDocumentUnlocked reads the escrow's unlock predicate.
func (c *Client) IsDocumentUnlocked(ctx context.Context, escrowAddress, documentID string) (unlocked bool, err error) {
	defer func() { metrics.ObserveChainCall("isDocumentUnlocked", err) }()

	escrow, err := c.escrow(escrowAddress)
	if err != nil {
		return false, err
	}
	id, err := ParseID(documentID)
	if err != nil {
		return false, err
	}
	var out []interface{}
	if err := escrow.Call(&bind.CallOpts{Context: ctx}, &out, "isDocumentUnlocked", id); err != nil {
		return false, fmt.Errorf("call isDocumentUnlocked: %w", err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("isDocumentUnlocked returned %d values", len(out))
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// MintLawyerIdentity mints the identity NFT to a verified lawyer's wallet and
// returns the token id.
func (c *Client) MintLawyerIdentity(ctx context.Context, to string) (tokenID string, err error) {
	defer func() { metrics.ObserveChainCall("safeMint", err) }()

	if c.identity == nil {
		return "", fmt.Errorf("lawyer identity contract: %w", ErrDisabled)
	}
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("invalid wallet address %q", to)
	}
	receipt, err := c.transact(ctx, c.identity, "safeMint", common.HexToAddress(to))
	if err != nil {
		return "", err
	}
	var ev struct {
		From    common.Address
		To      common.Address
		TokenId *big.Int
	}
	if err := findEvent(receipt, c.identity, c.identityABI, "Transfer", &ev); err != nil {
		return "", err
	}
	return ev.TokenId.String(), nil
}

// Disabled stands in when no RPC endpoint is configured. Writes fail and
// reads report locked.
type Disabled struct{}

func (Disabled) DeployEscrowForGroup(context.Context, int64) (string, error) {
	return "", ErrDisabled
}

func (Disabled) AddDocument(context.Context, string, string, decimal.Decimal, string, int64) (string, error) {
	return "", ErrDisabled
}

func (Disabled) MakePayment(context.Context, string, string) (string, error) {
	return "", ErrDisabled
}

func (Disabled) IsDocumentUnlocked(context.Context, string, string) (bool, error) {
	return false, ErrDisabled
}

func (Disabled) MintLawyerIdentity(context.Context, string) (string, error) {
	return "", ErrDisabled
}
