package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"briefly-server/chain"
	"briefly-server/database"
	"briefly-server/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, database.DriverSQLite))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var walletSeq int

func nextWallet() string {
	walletSeq++
	return fmt.Sprintf("0x%040x", walletSeq)
}

func createAccount(t *testing.T, db *gorm.DB) *models.Account {
	t.Helper()
	account := &models.Account{WalletAddress: nextWallet(), CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(account).Error)
	return account
}

// createLawyer inserts an account plus lawyer record and returns the
// account id.
func createLawyer(t *testing.T, db *gorm.DB, name string, verified bool) int64 {
	t.Helper()
	account := createAccount(t, db)
	lawyer := models.LawyerAccount{
		Account:         account.ID,
		Name:            name,
		Bio:             name + " has practiced for many years.",
		Expertise:       "Corporate law",
		ConsultationFee: decimal.NewFromInt(100),
		CreatedAt:       time.Now().UTC(),
	}
	if verified {
		now := time.Now().UTC()
		lawyer.VerifiedAt = &now
	}
	require.NoError(t, db.Omit("Owner", "Jurisdictions", "Labels").Create(&lawyer).Error)
	require.NoError(t, db.Create(&models.LawyerJurisdiction{Account: account.ID, Jurisdiction: "Delaware"}).Error)
	return account.ID
}

func createGroup(t *testing.T, db *gorm.DB, members ...int64) int64 {
	t.Helper()
	group := models.LawyerGroup{GroupName: "Startup counsel", Reasoning: "Covers formation and contracts", CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Omit("Members").Create(&group).Error)
	for i, m := range members {
		require.NoError(t, db.Omit("Lawyer").Create(&models.LawyerGroupMember{
			GroupID:        group.ID,
			LawyerAccount:  m,
			RelevanceScore: float64(9 - i),
			RoleInGroup:    "Counsel",
		}).Error)
	}
	return group.ID
}

func loadRequest(t *testing.T, db *gorm.DB, id int64) models.GroupRequest {
	t.Helper()
	var req models.GroupRequest
	require.NoError(t, db.First(&req, id).Error)
	return req
}

type recordingNotifier struct {
	mu    sync.Mutex
	types []string
}

func (n *recordingNotifier) Broadcast(_ int64, msgType string, _ any) {
	n.mu.Lock()
	n.types = append(n.types, msgType)
	n.mu.Unlock()
}

func (n *recordingNotifier) Types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.types...)
}

// fakeChain records calls and answers unlock reads from a map.
type fakeChain struct {
	mu        sync.Mutex
	deploys   int
	nextDocID int
	payments  []string
	unlocked  map[string]bool
	readErr   error
	payErr    error
	mintErr   error
	mintDelay time.Duration
	minted    []string
}

func newFakeChain() *fakeChain {
	return &fakeChain{unlocked: make(map[string]bool)}
}

func (f *fakeChain) DeployEscrowForGroup(_ context.Context, groupID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deploys++
	return fmt.Sprintf("0x%040x", 0xE5C0+groupID), nil
}

func (f *fakeChain) AddDocument(_ context.Context, _, _ string, _ decimal.Decimal, _ string, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextDocID++
	return fmt.Sprint(f.nextDocID), nil
}

func (f *fakeChain) MakePayment(_ context.Context, _ string, documentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payErr != nil {
		return "", f.payErr
	}
	f.payments = append(f.payments, documentID)
	f.unlocked[documentID] = true
	return "0xfeed", nil
}

func (f *fakeChain) IsDocumentUnlocked(_ context.Context, _ string, documentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.unlocked[documentID], nil
}

func (f *fakeChain) MintLawyerIdentity(_ context.Context, to string) (string, error) {
	time.Sleep(f.mintDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintErr != nil {
		return "", f.mintErr
	}
	f.minted = append(f.minted, to)
	return fmt.Sprint(len(f.minted)), nil
}

var _ Chain = (*fakeChain)(nil)
var _ Chain = chain.Disabled{}
