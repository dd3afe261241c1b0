package services

import (
	"context"
	"errors"
	"strings"

	"briefly-server/apierr"
	"briefly-server/events"
	"briefly-server/logger"
	"briefly-server/metrics"
	"briefly-server/models"
	"briefly-server/utils"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AddDocumentInput struct {
	Title       string
	Description string
	FileName    string
	MimeType    string
	Data        []byte
	Price       decimal.Decimal
}

type DocumentView struct {
	models.GroupDocument
	IsPaid bool `json:"isPaid"`
}

// Download is a decrypted document ready to stream.
type Download struct {
	FileName string
	MimeType string
	Data     []byte
}

// EscrowService gates encrypted group documents behind on-chain payment.
type EscrowService struct {
	DB     *gorm.DB
	Chain  Chain
	Blobs  utils.BlobStore
	Chat   *ChatService
	Events events.Publisher
	Log    *logger.Logger
	Now    Clock

	groupLocks keyedLocks
}

func NewEscrowService(db *gorm.DB, ch Chain, blobs utils.BlobStore, chat *ChatService, pub events.Publisher, log *logger.Logger) *EscrowService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &EscrowService{
		DB:     db,
		Chain:  ch,
		Blobs:  blobs,
		Chat:   chat,
		Events: pub,
		Log:    log,
	}
}

func (s *EscrowService) publish(ctx context.Context, subject string, payload any) {
	if err := s.Events.Publish(ctx, subject, payload); err != nil {
		s.Log.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}

// ensureEscrow returns the group's escrow address, deploying it on first use.
// The address is written at most once.
func (s *EscrowService) ensureEscrow(ctx context.Context, groupID int64) (string, error) {
	lock := s.groupLocks.get(groupID)
	lock.Lock()
	defer lock.Unlock()

	var group models.LawyerGroup
	if err := s.DB.WithContext(ctx).First(&group, groupID).Error; err != nil {
		return "", apierr.Internal("failed to load group", err)
	}
	if group.EscrowContractAddress != nil && *group.EscrowContractAddress != "" {
		return *group.EscrowContractAddress, nil
	}

	address, err := s.Chain.DeployEscrowForGroup(ctx, groupID)
	if err != nil {
		return "", apierr.Internal("failed to deploy escrow contract", err)
	}

	res := s.DB.WithContext(ctx).Model(&models.LawyerGroup{}).
		Where("id = ? AND escrow_contract_address IS NULL", groupID).
		Update("escrow_contract_address", address)
	if res.Error != nil {
		return "", apierr.Internal("failed to save escrow address", res.Error)
	}
	if res.RowsAffected == 0 {
		// Another process won the race; use the stored address.
		if err := s.DB.WithContext(ctx).First(&group, groupID).Error; err != nil {
			return "", apierr.Internal("failed to load group", err)
		}
		s.Log.Warn("Escrow already recorded for group, discarding new deployment", "group", groupID, "deployed", address)
		return *group.EscrowContractAddress, nil
	}
	s.Log.Info("Escrow deployed for group", "group", groupID, "escrow", address)
	return address, nil
}

// AddDocument encrypts and stores a document, registers it on the group's
// escrow and records it locked.
func (s *EscrowService) AddDocument(ctx context.Context, groupID, lawyerID int64, in AddDocumentInput) (*models.GroupDocument, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Title == "":
		return nil, apierr.Validation("title is required")
	case len(in.Data) == 0:
		return nil, apierr.Validation("file is required")
	case !in.Price.IsPositive():
		return nil, apierr.Validation("price must be greater than zero")
	}
	if in.FileName == "" {
		in.FileName = "document"
	}
	if in.MimeType == "" {
		in.MimeType = "application/octet-stream"
	}

	if _, err := loadGroup(ctx, s.DB, groupID); err != nil {
		return nil, err
	}
	lawyer, err := verifiedLawyer(ctx, s.DB, lawyerID)
	if err != nil {
		return nil, err
	}
	member, err := isGroupMember(s.DB.WithContext(ctx), groupID, lawyerID)
	if err != nil {
		return nil, apierr.Internal("failed to check membership", err)
	}
	if !member {
		return nil, apierr.Forbidden("only lawyers in this group can add documents")
	}

	key, err := utils.GenerateEncryptionKey()
	if err != nil {
		return nil, apierr.Internal("failed to encrypt document", err)
	}
	enc, err := utils.EncryptFile(in.Data, key)
	if err != nil {
		return nil, apierr.Internal("failed to encrypt document", err)
	}
	hash := utils.HashDocument(in.Data)

	blob, err := s.Blobs.Put(ctx, in.FileName+".enc", enc.Ciphertext)
	if err != nil {
		return nil, apierr.Internal("failed to store document", err)
	}

	escrow, err := s.ensureEscrow(ctx, groupID)
	if err != nil {
		return nil, err
	}
	contractID, err := s.Chain.AddDocument(ctx, escrow, hash, in.Price, lawyer.Owner.WalletAddress, groupID)
	if err != nil {
		return nil, apierr.Internal("failed to register document on chain", err)
	}

	doc := &models.GroupDocument{
		GroupID:            groupID,
		LawyerAccount:      lawyerID,
		ContractDocumentID: contractID,
		Title:              in.Title,
		Description:        in.Description,
		FileName:           in.FileName,
		MimeType:           in.MimeType,
		DocumentHash:       hash,
		IPFSHash:           blob.Hash,
		EncryptionKey:      key,
		IV:                 enc.IV,
		AuthTag:            enc.AuthTag,
		PaymentRequired:    in.Price,
		Status:             models.DocumentStatusLocked,
		CreatedAt:          s.Now.now(),
	}
	if err := s.DB.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, apierr.Internal("failed to save document", err)
	}
	s.Log.Info("Document added to escrow", "document", doc.ID, "group", groupID, "contractDocumentId", contractID)

	if s.Chat != nil {
		if _, err := s.Chat.postDocumentMessage(ctx, doc); err != nil {
			s.Log.Warn("Failed to post document message", "document", doc.ID, "error", err)
		}
	}
	s.publish(ctx, events.SubjectDocumentAdded, map[string]any{
		"documentId": doc.ID, "groupId": groupID, "contractDocumentId": contractID, "price": in.Price.String(),
	})
	return doc, nil
}

func (s *EscrowService) loadDocument(ctx context.Context, groupID, documentID int64) (*models.GroupDocument, error) {
	var doc models.GroupDocument
	err := s.DB.WithContext(ctx).Where("id = ? AND group_id = ?", documentID, groupID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("document not found")
	}
	if err != nil {
		return nil, apierr.Internal("failed to load document", err)
	}
	return &doc, nil
}

func (s *EscrowService) escrowAddress(ctx context.Context, groupID int64) (string, error) {
	var group models.LawyerGroup
	if err := s.DB.WithContext(ctx).First(&group, groupID).Error; err != nil {
		return "", err
	}
	if group.EscrowContractAddress == nil || *group.EscrowContractAddress == "" {
		return "", errors.New("group has no escrow contract")
	}
	return *group.EscrowContractAddress, nil
}

// markUnlocked flips a document to unlocked once. It reports whether this
// call performed the transition.
func (s *EscrowService) markUnlocked(ctx context.Context, doc *models.GroupDocument, source string) (bool, error) {
	now := s.Now.now()
	res := s.DB.WithContext(ctx).Model(&models.GroupDocument{}).
		Where("id = ? AND status = ?", doc.ID, models.DocumentStatusLocked).
		Updates(map[string]interface{}{"status": models.DocumentStatusUnlocked, "unlocked_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	doc.Status = models.DocumentStatusUnlocked
	if res.RowsAffected == 0 {
		return false, nil
	}
	doc.UnlockedAt = &now
	metrics.DocumentsUnlocked.WithLabelValues(source).Inc()
	s.Log.Info("Document unlocked", "document", doc.ID, "source", source)
	s.publish(ctx, events.SubjectDocumentUnlocked, map[string]any{
		"documentId": doc.ID, "groupId": doc.GroupID, "source": source,
	})
	return true, nil
}

// Pay settles a document on chain and unlocks it. Paying an unlocked
// document is a no-op.
func (s *EscrowService) Pay(ctx context.Context, groupID, documentID, payerID int64) (*models.GroupDocument, error) {
	if err := ensureParticipant(ctx, s.DB, groupID, payerID); err != nil {
		return nil, err
	}
	doc, err := s.loadDocument(ctx, groupID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.IsUnlocked() || s.refreshLock(ctx, doc, "payment") {
		return doc, nil
	}

	escrow, err := s.escrowAddress(ctx, groupID)
	if err != nil {
		return nil, apierr.Internal("failed to load escrow", err)
	}
	txHash, err := s.Chain.MakePayment(ctx, escrow, doc.ContractDocumentID)
	if err != nil {
		return nil, apierr.Internal("payment transaction failed", err)
	}
	s.Log.Info("Document payment confirmed", "document", doc.ID, "payer", payerID, "tx", txHash)

	if _, err := s.markUnlocked(ctx, doc, "payment"); err != nil {
		return nil, apierr.Internal("failed to unlock document", err)
	}
	return doc, nil
}

// refreshLock asks the contract whether a locked document has been paid out
// of band and unlocks it locally if so. Any read failure leaves it locked.
func (s *EscrowService) refreshLock(ctx context.Context, doc *models.GroupDocument, source string) bool {
	if doc.IsUnlocked() {
		return true
	}
	escrow, err := s.escrowAddress(ctx, doc.GroupID)
	if err != nil {
		s.Log.Warn("Cannot check unlock status without escrow", "document", doc.ID, "error", err)
		return false
	}
	unlocked, err := s.Chain.IsDocumentUnlocked(ctx, escrow, doc.ContractDocumentID)
	if err != nil {
		s.Log.Warn("Unlock status read failed, treating as locked", "document", doc.ID, "error", err)
		return false
	}
	if !unlocked {
		return false
	}
	if _, err := s.markUnlocked(ctx, doc, source); err != nil {
		s.Log.Error("Failed to record out-of-band unlock", "document", doc.ID, "error", err)
		return false
	}
	return true
}

// Download returns the decrypted document for a participant. Locked
// documents fail with payment required.
func (s *EscrowService) Download(ctx context.Context, groupID, documentID, accountID int64) (*Download, error) {
	if err := ensureParticipant(ctx, s.DB, groupID, accountID); err != nil {
		return nil, err
	}
	doc, err := s.loadDocument(ctx, groupID, documentID)
	if err != nil {
		return nil, err
	}

	if !s.refreshLock(ctx, doc, "download") {
		metrics.DocumentDownloads.WithLabelValues("locked").Inc()
		return nil, apierr.PaymentRequired("payment required to download this document")
	}

	ciphertext, err := s.Blobs.Get(ctx, doc.IPFSHash)
	if err != nil {
		metrics.DocumentDownloads.WithLabelValues("error").Inc()
		return nil, apierr.Internal("failed to fetch document", err)
	}
	plaintext, err := utils.DecryptFile(ciphertext, doc.EncryptionKey, doc.IV, doc.AuthTag)
	if err != nil {
		metrics.DocumentDownloads.WithLabelValues("error").Inc()
		return nil, apierr.Internal("failed to decrypt document", err)
	}

	err = s.DB.WithContext(ctx).Create(&models.DocumentAccessLog{
		DocumentID: doc.ID,
		AccountID:  accountID,
		AccessedAt: s.Now.now(),
	}).Error
	if err != nil {
		metrics.DocumentDownloads.WithLabelValues("error").Inc()
		return nil, apierr.Internal("failed to record access", err)
	}
	metrics.DocumentDownloads.WithLabelValues("ok").Inc()

	return &Download{FileName: doc.FileName, MimeType: doc.MimeType, Data: plaintext}, nil
}

// ListDocuments returns a group's documents, newest first.
func (s *EscrowService) ListDocuments(ctx context.Context, groupID, accountID int64) ([]DocumentView, error) {
	if err := ensureParticipant(ctx, s.DB, groupID, accountID); err != nil {
		return nil, err
	}
	var docs []models.GroupDocument
	err := s.DB.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC, id DESC").
		Find(&docs).Error
	if err != nil {
		return nil, apierr.Internal("failed to list documents", err)
	}
	out := make([]DocumentView, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentView{GroupDocument: d, IsPaid: d.IsUnlocked()})
	}
	return out, nil
}

// ReconcileLocked re-checks every locked document against its escrow and
// returns how many were unlocked.
func (s *EscrowService) ReconcileLocked(ctx context.Context) (int, error) {
	var docs []models.GroupDocument
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.DocumentStatusLocked).
		Order("id ASC").
		Find(&docs).Error
	if err != nil {
		return 0, err
	}
	unlocked := 0
	for i := range docs {
		if ctx.Err() != nil {
			return unlocked, ctx.Err()
		}
		if s.refreshLock(ctx, &docs[i], "reconcile") {
			unlocked++
		}
	}
	return unlocked, nil
}
