package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"briefly-server/apierr"
	"briefly-server/events"
	"briefly-server/logger"
	"briefly-server/models"
	"briefly-server/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type escrowFixture struct {
	db       *gorm.DB
	chain    *fakeChain
	blobs    *utils.MemoryStore
	svc      *EscrowService
	notifier *recordingNotifier
	events   *events.Recorder
	lawyer   int64
	client   int64
	group    int64
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()
	db := newTestDB(t)
	f := &escrowFixture{
		db:       db,
		chain:    newFakeChain(),
		blobs:    utils.NewMemoryStore(),
		notifier: &recordingNotifier{},
		events:   &events.Recorder{},
	}
	chat := NewChatService(db, f.notifier)
	f.svc = NewEscrowService(db, f.chain, f.blobs, chat, f.events, logger.Nop())

	f.lawyer = createLawyer(t, db, "Ada", true)
	f.group = createGroup(t, db, f.lawyer)
	f.client = createAccount(t, db).ID
	require.NoError(t, db.Omit("Group", "Requester", "Responses").Create(&models.GroupRequest{
		RequesterAccount: f.client,
		GroupID:          f.group,
		CurrentSituation: "Founding a company",
		FuturePlans:      "Raise a seed round",
		Status:           models.RequestStatusAccepted,
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}).Error)
	return f
}

func (f *escrowFixture) add(t *testing.T, data string) *models.GroupDocument {
	t.Helper()
	doc, err := f.svc.AddDocument(context.Background(), f.group, f.lawyer, AddDocumentInput{
		Title:    "Shareholder agreement",
		FileName: "agreement.pdf",
		MimeType: "application/pdf",
		Data:     []byte(data),
		Price:    decimal.RequireFromString("25"),
	})
	require.NoError(t, err)
	return doc
}

func TestAddDocument_DeploysEscrowOnce(t *testing.T) {
	f := newEscrowFixture(t)
	first := f.add(t, "first draft")
	second := f.add(t, "second draft")

	assert.Equal(t, 1, f.chain.deploys)
	assert.NotEqual(t, first.ContractDocumentID, second.ContractDocumentID)
	assert.Equal(t, models.DocumentStatusLocked, first.Status)
	assert.Equal(t, utils.HashDocument([]byte("first draft")), first.DocumentHash)

	var group models.LawyerGroup
	require.NoError(t, f.db.First(&group, f.group).Error)
	require.NotNil(t, group.EscrowContractAddress)

	stored, err := f.blobs.Get(context.Background(), first.IPFSHash)
	require.NoError(t, err)
	assert.NotEqual(t, []byte("first draft"), stored)

	assert.Contains(t, f.notifier.Types(), HubDocumentAdded)
	assert.Contains(t, f.events.Subjects(), events.SubjectDocumentAdded)
}

func TestAddDocument_Validation(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddDocument(ctx, f.group, f.lawyer, AddDocumentInput{Title: "Doc", Data: []byte("x"), Price: decimal.Zero})
	assert.True(t, apierr.Is(err, apierr.KindValidation))

	_, err = f.svc.AddDocument(ctx, f.group, f.lawyer, AddDocumentInput{Title: "  ", Data: []byte("x"), Price: decimal.NewFromInt(1)})
	assert.True(t, apierr.Is(err, apierr.KindValidation))

	_, err = f.svc.AddDocument(ctx, f.group, f.lawyer, AddDocumentInput{Title: "Doc", Price: decimal.NewFromInt(1)})
	assert.True(t, apierr.Is(err, apierr.KindValidation))
	assert.Zero(t, f.chain.deploys)
}

func TestAddDocument_OnlyGroupLawyers(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	in := AddDocumentInput{Title: "Doc", Data: []byte("x"), Price: decimal.NewFromInt(1)}

	other := createLawyer(t, f.db, "Other", true)
	_, err := f.svc.AddDocument(ctx, f.group, other, in)
	assert.True(t, apierr.Is(err, apierr.KindForbidden))

	_, err = f.svc.AddDocument(ctx, f.group, f.client, in)
	assert.True(t, apierr.Is(err, apierr.KindForbidden))

	_, err = f.svc.AddDocument(ctx, 999, f.lawyer, in)
	assert.True(t, apierr.Is(err, apierr.KindNotFound))
}

func TestDownload_RequiresPayment(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	doc := f.add(t, "confidential terms")

	_, err := f.svc.Download(ctx, f.group, doc.ID, f.client)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindPaymentRequired))

	paid, err := f.svc.Pay(ctx, f.group, doc.ID, f.client)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusUnlocked, paid.Status)
	assert.Equal(t, []string{doc.ContractDocumentID}, f.chain.payments)

	dl, err := f.svc.Download(ctx, f.group, doc.ID, f.client)
	require.NoError(t, err)
	assert.Equal(t, []byte("confidential terms"), dl.Data)
	assert.Equal(t, "agreement.pdf", dl.FileName)
	assert.Equal(t, "application/pdf", dl.MimeType)

	var logs int64
	require.NoError(t, f.db.Model(&models.DocumentAccessLog{}).Where("document_id = ? AND account_id = ?", doc.ID, f.client).Count(&logs).Error)
	assert.Equal(t, int64(1), logs)
}

func TestPay_IsIdempotent(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	doc := f.add(t, "terms")

	_, err := f.svc.Pay(ctx, f.group, doc.ID, f.client)
	require.NoError(t, err)
	_, err = f.svc.Pay(ctx, f.group, doc.ID, f.client)
	require.NoError(t, err)
	assert.Len(t, f.chain.payments, 1)
	assert.Equal(t, []string{events.SubjectDocumentAdded, events.SubjectDocumentUnlocked}, f.events.Subjects())
}

func TestPay_SkipsChainWhenPaidOutOfBand(t *testing.T) {
	f := newEscrowFixture(t)
	doc := f.add(t, "terms")
	f.chain.unlocked[doc.ContractDocumentID] = true

	paid, err := f.svc.Pay(context.Background(), f.group, doc.ID, f.client)
	require.NoError(t, err)
	assert.True(t, paid.IsUnlocked())
	assert.Empty(t, f.chain.payments)
}

func TestPay_ChainFailureKeepsDocumentLocked(t *testing.T) {
	f := newEscrowFixture(t)
	doc := f.add(t, "terms")
	f.chain.payErr = errors.New("execution reverted")

	_, err := f.svc.Pay(context.Background(), f.group, doc.ID, f.client)
	require.Error(t, err)
	assert.Equal(t, apierr.KindInternal, apierr.KindOf(err))

	var stored models.GroupDocument
	require.NoError(t, f.db.First(&stored, doc.ID).Error)
	assert.Equal(t, models.DocumentStatusLocked, stored.Status)
}

func TestDownload_SelfHealsOutOfBandPayment(t *testing.T) {
	f := newEscrowFixture(t)
	doc := f.add(t, "terms")
	f.chain.unlocked[doc.ContractDocumentID] = true

	dl, err := f.svc.Download(context.Background(), f.group, doc.ID, f.lawyer)
	require.NoError(t, err)
	assert.Equal(t, []byte("terms"), dl.Data)

	var stored models.GroupDocument
	require.NoError(t, f.db.First(&stored, doc.ID).Error)
	assert.Equal(t, models.DocumentStatusUnlocked, stored.Status)
	assert.NotNil(t, stored.UnlockedAt)
}

func TestDownload_ChainReadFailureStaysLocked(t *testing.T) {
	f := newEscrowFixture(t)
	doc := f.add(t, "terms")
	f.chain.unlocked[doc.ContractDocumentID] = true
	f.chain.readErr = errors.New("rpc unavailable")

	_, err := f.svc.Download(context.Background(), f.group, doc.ID, f.client)
	assert.True(t, apierr.Is(err, apierr.KindPaymentRequired))
}

func TestDownload_Access(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	doc := f.add(t, "terms")

	outsider := createAccount(t, f.db).ID
	_, err := f.svc.Download(ctx, f.group, doc.ID, outsider)
	assert.True(t, apierr.Is(err, apierr.KindForbidden))

	_, err = f.svc.Pay(ctx, f.group, doc.ID, outsider)
	assert.True(t, apierr.Is(err, apierr.KindForbidden))

	_, err = f.svc.Download(ctx, f.group, doc.ID+100, f.client)
	assert.True(t, apierr.Is(err, apierr.KindNotFound))

	_, err = f.svc.ListDocuments(ctx, f.group, outsider)
	assert.True(t, apierr.Is(err, apierr.KindForbidden))
}

func TestDownload_TamperedBlobFails(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	doc := f.add(t, "terms")
	_, err := f.svc.Pay(ctx, f.group, doc.ID, f.client)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.GroupDocument{}).Where("id = ?", doc.ID).
		Update("auth_tag", "00000000000000000000000000000000").Error)

	_, err = f.svc.Download(ctx, f.group, doc.ID, f.client)
	require.Error(t, err)
	assert.Equal(t, apierr.KindInternal, apierr.KindOf(err))
	assert.ErrorIs(t, err, utils.ErrDecryptFailed)
}

func TestListDocuments(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	first := f.add(t, "one")
	f.add(t, "two")
	_, err := f.svc.Pay(ctx, f.group, first.ID, f.client)
	require.NoError(t, err)

	docs, err := f.svc.ListDocuments(ctx, f.group, f.client)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	paid := map[int64]bool{}
	for _, d := range docs {
		paid[d.ID] = d.IsPaid
	}
	assert.True(t, paid[first.ID])
	assert.Len(t, paid, 2)
}

func TestReconcileLocked(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	a := f.add(t, "one")
	f.add(t, "two")
	f.chain.unlocked[a.ContractDocumentID] = true

	n, err := f.svc.ReconcileLocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.ReconcileLocked(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
