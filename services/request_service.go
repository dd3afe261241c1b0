package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"briefly-server/apierr"
	"briefly-server/events"
	"briefly-server/logger"
	"briefly-server/metrics"
	"briefly-server/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultRequestTimeout = 24 * time.Hour
	minNarrativeLength    = 10
)

type CreateRequestInput struct {
	GroupID          int64  `json:"groupId"`
	CurrentSituation string `json:"currentSituation"`
	FuturePlans      string `json:"futurePlans"`
}

// RespondResult is returned after a lawyer's decision is recorded.
type RespondResult struct {
	RequestID     int64     `json:"requestId"`
	Response      string    `json:"response"`
	RequestStatus string    `json:"requestStatus"`
	RespondedAt   time.Time `json:"respondedAt"`
}

type RequestView struct {
	models.GroupRequest
	GroupName       string                        `json:"groupName"`
	RequesterWallet string                        `json:"requesterWallet,omitempty"`
	Responses       []models.GroupRequestResponse `json:"responses"`
}

type RequestService struct {
	DB      *gorm.DB
	Timeout time.Duration
	Events  events.Publisher
	Chat    *ChatService
	Log     *logger.Logger
	Now     Clock
}

func NewRequestService(db *gorm.DB, timeout time.Duration, pub events.Publisher, log *logger.Logger) *RequestService {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &RequestService{DB: db, Timeout: timeout, Events: pub, Log: log}
}

func (s *RequestService) publish(ctx context.Context, subject string, payload any) {
	if err := s.Events.Publish(ctx, subject, payload); err != nil {
		s.Log.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}

// GetGroup returns a group with its members.
func (s *RequestService) GetGroup(ctx context.Context, groupID int64) (*GroupView, error) {
	g, err := loadGroup(ctx, s.DB, groupID)
	if err != nil {
		return nil, err
	}
	view := newGroupView(g)
	return &view, nil
}

// CreateRequest opens a pending request from requester to a group. A
// requester may hold only one pending request per group.
func (s *RequestService) CreateRequest(ctx context.Context, requesterID int64, in CreateRequestInput) (*models.GroupRequest, error) {
	in.CurrentSituation = strings.TrimSpace(in.CurrentSituation)
	in.FuturePlans = strings.TrimSpace(in.FuturePlans)
	switch {
	case in.GroupID <= 0:
		return nil, apierr.Validation("groupId is required")
	case len(in.CurrentSituation) < minNarrativeLength:
		return nil, apierr.Validation("currentSituation must be at least %d characters", minNarrativeLength)
	case len(in.FuturePlans) < minNarrativeLength:
		return nil, apierr.Validation("futurePlans must be at least %d characters", minNarrativeLength)
	}

	now := s.Now.now()
	req := models.GroupRequest{
		RequesterAccount: requesterID,
		GroupID:          in.GroupID,
		CurrentSituation: in.CurrentSituation,
		FuturePlans:      in.FuturePlans,
		Status:           models.RequestStatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.Timeout),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var groups int64
		if err := tx.Model(&models.LawyerGroup{}).Where("id = ?", in.GroupID).Count(&groups).Error; err != nil {
			return err
		}
		if groups == 0 {
			return apierr.NotFound("group not found")
		}

		// A stale pending row must not block a new request.
		if err := expirePending(tx.Where("requester_account = ? AND group_id = ?", requesterID, in.GroupID), now).Error; err != nil {
			return err
		}

		var pending int64
		err := tx.Model(&models.GroupRequest{}).
			Where("requester_account = ? AND group_id = ? AND status = ?", requesterID, in.GroupID, models.RequestStatusPending).
			Count(&pending).Error
		if err != nil {
			return err
		}
		if pending > 0 {
			return apierr.Conflict("you already have a pending request for this group")
		}
		return tx.Omit(clause.Associations).Create(&req).Error
	})
	if err != nil {
		if apierr.KindOf(err) != apierr.KindInternal {
			return nil, err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return nil, apierr.Conflict("you already have a pending request for this group")
		}
		return nil, apierr.Internal("failed to create request", err)
	}

	metrics.RequestsCreated.Inc()
	s.Log.Info("Group request created", "request", req.ID, "group", req.GroupID, "requester", requesterID)
	s.publish(ctx, events.SubjectRequestCreated, map[string]any{
		"requestId": req.ID, "groupId": req.GroupID, "requesterAccount": requesterID,
	})
	return &req, nil
}

// Respond records a lawyer's decision and recomputes the request status in
// the same transaction. One rejection is final; acceptance needs every
// member.
func (s *RequestService) Respond(ctx context.Context, lawyerID, requestID int64, decision string) (*RespondResult, error) {
	decision = strings.ToLower(strings.TrimSpace(decision))
	if decision != models.ResponseAccepted && decision != models.ResponseRejected {
		return nil, apierr.Validation("response must be %q or %q", models.ResponseAccepted, models.ResponseRejected)
	}
	if _, err := verifiedLawyer(ctx, s.DB, lawyerID); err != nil {
		return nil, err
	}

	now := s.Now.now()
	var (
		req     models.GroupRequest
		expired bool
		status  string
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.NotFound("request not found")
		}
		if err != nil {
			return err
		}

		member, err := isGroupMember(tx, req.GroupID, lawyerID)
		if err != nil {
			return err
		}
		if !member {
			return apierr.NotFound("request not found")
		}
		if req.IsTerminal() {
			return apierr.Conflict("request is no longer pending (status: %s)", req.Status)
		}
		if req.IsExpired(now) {
			expired = true
			return expirePending(tx.Where("id = ?", req.ID), now).Error
		}

		var prior int64
		if err := tx.Model(&models.GroupRequestResponse{}).
			Where("request_id = ? AND lawyer_account = ?", req.ID, lawyerID).
			Count(&prior).Error; err != nil {
			return err
		}
		if prior > 0 {
			return apierr.Conflict("you have already responded to this request")
		}

		if err := tx.Create(&models.GroupRequestResponse{
			RequestID:     req.ID,
			LawyerAccount: lawyerID,
			Response:      decision,
			RespondedAt:   now,
		}).Error; err != nil {
			return err
		}

		status = models.RequestStatusPending
		if decision == models.ResponseRejected {
			status = models.RequestStatusRejected
		} else {
			unanimous, err := allMembersAccepted(tx, req.GroupID, req.ID)
			if err != nil {
				return err
			}
			if unanimous {
				status = models.RequestStatusAccepted
			}
		}
		if status == models.RequestStatusPending {
			return nil
		}

		res := tx.Model(&models.GroupRequest{}).
			Where("id = ? AND status = ?", req.ID, models.RequestStatusPending).
			Updates(map[string]interface{}{"status": status, "completed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apierr.Conflict("request is no longer pending")
		}
		return nil
	})
	if err != nil {
		if apierr.KindOf(err) != apierr.KindInternal {
			return nil, err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return nil, apierr.Conflict("you have already responded to this request")
		}
		return nil, apierr.Internal("failed to record response", err)
	}
	if expired {
		metrics.RequestsCompleted.WithLabelValues(models.RequestStatusExpired).Inc()
		s.publishCompleted(ctx, &req, models.RequestStatusExpired)
		return nil, apierr.Conflict("request has expired")
	}

	s.Log.Info("Lawyer responded to request", "request", req.ID, "lawyer", lawyerID, "response", decision, "status", status)
	s.publish(ctx, events.SubjectRequestResponded, map[string]any{
		"requestId": req.ID, "lawyerAccount": lawyerID, "response": decision, "requestStatus": status,
	})
	if status != models.RequestStatusPending {
		metrics.RequestsCompleted.WithLabelValues(status).Inc()
		s.publishCompleted(ctx, &req, status)
	}
	if status == models.RequestStatusAccepted {
		s.announceAccepted(ctx, &req)
	}

	return &RespondResult{
		RequestID:     req.ID,
		Response:      decision,
		RequestStatus: status,
		RespondedAt:   now,
	}, nil
}

func (s *RequestService) publishCompleted(ctx context.Context, req *models.GroupRequest, status string) {
	s.publish(ctx, events.SubjectRequestCompleted, map[string]any{
		"requestId": req.ID, "groupId": req.GroupID, "status": status,
	})
}

// announceAccepted posts a system message to the group and pushes it to
// connected clients.
func (s *RequestService) announceAccepted(ctx context.Context, req *models.GroupRequest) {
	if s.Chat == nil {
		return
	}
	if _, err := s.Chat.PostSystemMessage(ctx, req.GroupID, req.RequesterAccount,
		"All lawyers in this group accepted the request. The client has joined the group chat."); err != nil {
		s.Log.Warn("Failed to post acceptance message", "request", req.ID, "error", err)
	}
}

// allMembersAccepted compares the set of accepting lawyers with the full
// membership of the group.
func allMembersAccepted(tx *gorm.DB, groupID, requestID int64) (bool, error) {
	var members []int64
	if err := tx.Model(&models.LawyerGroupMember{}).
		Where("group_id = ?", groupID).
		Pluck("lawyer_account", &members).Error; err != nil {
		return false, err
	}
	var accepted []int64
	if err := tx.Model(&models.GroupRequestResponse{}).
		Where("request_id = ? AND response = ?", requestID, models.ResponseAccepted).
		Pluck("lawyer_account", &accepted).Error; err != nil {
		return false, err
	}
	if len(members) == 0 {
		return false, nil
	}

	acceptedSet := make(map[int64]bool, len(accepted))
	for _, a := range accepted {
		acceptedSet[a] = true
	}
	for _, m := range members {
		if !acceptedSet[m] {
			return false, nil
		}
	}
	return true, nil
}

// expirePending moves pending rows past their deadline to expired. scope
// narrows the rows considered.
func expirePending(scope *gorm.DB, now time.Time) *gorm.DB {
	return scope.Model(&models.GroupRequest{}).
		Where("status = ? AND expires_at < ?", models.RequestStatusPending, now).
		Updates(map[string]interface{}{"status": models.RequestStatusExpired, "completed_at": now})
}

// ExpireStale expires every overdue pending request and reports how many
// rows changed. Re-running it is a no-op.
func (s *RequestService) ExpireStale(ctx context.Context) (int64, error) {
	res := expirePending(s.DB.WithContext(ctx), s.Now.now())
	if res.Error != nil {
		return 0, apierr.Internal("failed to expire requests", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.RequestsExpiredBySweep.Add(float64(res.RowsAffected))
		metrics.RequestsCompleted.WithLabelValues(models.RequestStatusExpired).Add(float64(res.RowsAffected))
		s.Log.Info("Expired stale group requests", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// ListSent returns the requester's requests, newest first.
func (s *RequestService) ListSent(ctx context.Context, requesterID int64) ([]RequestView, error) {
	if _, err := s.ExpireStale(ctx); err != nil {
		return nil, err
	}

	var reqs []models.GroupRequest
	err := s.DB.WithContext(ctx).
		Preload("Group").
		Preload("Responses").
		Where("requester_account = ?", requesterID).
		Order("created_at DESC, id DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, apierr.Internal("failed to list requests", err)
	}
	return newRequestViews(reqs), nil
}

// ListPending returns pending requests to the lawyer's groups that the
// lawyer has not answered yet.
func (s *RequestService) ListPending(ctx context.Context, lawyerID int64) ([]RequestView, error) {
	if _, err := verifiedLawyer(ctx, s.DB, lawyerID); err != nil {
		return nil, err
	}
	if _, err := s.ExpireStale(ctx); err != nil {
		return nil, err
	}

	db := s.DB.WithContext(ctx)
	memberOf := db.Model(&models.LawyerGroupMember{}).Select("group_id").Where("lawyer_account = ?", lawyerID)
	answered := db.Model(&models.GroupRequestResponse{}).Select("request_id").Where("lawyer_account = ?", lawyerID)

	var reqs []models.GroupRequest
	err := db.
		Preload("Group").
		Preload("Requester").
		Preload("Responses").
		Where("status = ?", models.RequestStatusPending).
		Where("group_id IN (?)", memberOf).
		Where("id NOT IN (?)", answered).
		Order("created_at ASC, id ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, apierr.Internal("failed to list pending requests", err)
	}
	return newRequestViews(reqs), nil
}

func newRequestViews(reqs []models.GroupRequest) []RequestView {
	out := make([]RequestView, 0, len(reqs))
	for _, r := range reqs {
		responses := r.Responses
		if responses == nil {
			responses = []models.GroupRequestResponse{}
		}
		out = append(out, RequestView{
			GroupRequest:    r,
			GroupName:       r.Group.GroupName,
			RequesterWallet: r.Requester.WalletAddress,
			Responses:       responses,
		})
	}
	return out
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
