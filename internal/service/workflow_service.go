package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"p2p/internal/metrics"
	"p2p/internal/model"
	"p2p/internal/policy"
	"p2p/internal/repository"
	"p2p/internal/workflow"
	"p2p/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WorkflowService drives the two-level approval chain of purchase requests.
type WorkflowService interface {
	Approve(ctx context.Context, requestID uuid.UUID, actor model.Actor, comments string) (*PurchaseRequestResponse, error)
	Reject(ctx context.Context, requestID uuid.UUID, actor model.Actor, comments string) (*PurchaseRequestResponse, error)
}

type workflowService struct {
	txManager repository.TransactionManager
	requests  repository.PurchaseRequestRepository
	approvals repository.ApprovalRepository
	audits    repository.AuditRepository
	generator PurchaseOrderGenerator
	policy    Authorizer
	notifier  Notifier
	now       func() time.Time
	log       *logrus.Entry
}

func NewWorkflowService(
	txManager repository.TransactionManager,
	requests repository.PurchaseRequestRepository,
	approvals repository.ApprovalRepository,
	audits repository.AuditRepository,
	generator PurchaseOrderGenerator,
	authz Authorizer,
	notifier Notifier,
	logger *logrus.Logger,
) WorkflowService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &workflowService{
		txManager: txManager,
		requests:  requests,
		approvals: approvals,
		audits:    audits,
		generator: generator,
		policy:    authz,
		notifier:  notifier,
		now:       time.Now,
		log:       componentLogger(logger, "workflow"),
	}
}

func (s *workflowService) Approve(ctx context.Context, requestID uuid.UUID, actor model.Actor, comments string) (*PurchaseRequestResponse, error) {
	return s.decide(ctx, requestID, actor, workflow.Approve, comments)
}

func (s *workflowService) Reject(ctx context.Context, requestID uuid.UUID, actor model.Actor, comments string) (*PurchaseRequestResponse, error) {
	return s.decide(ctx, requestID, actor, workflow.Reject, comments)
}

type decisionOutcome struct {
	requester uuid.UUID
	to        string
	order     *model.PurchaseOrder
	approvers []uuid.UUID
}

func (s *workflowService) decide(ctx context.Context, requestID uuid.UUID, actor model.Actor, decision workflow.Decision, comments string) (*PurchaseRequestResponse, error) {
	level, ok := workflow.LevelForRole(actor.Role)
	if !ok {
		metrics.ObserveDecision(string(decision), "", metrics.ResultRejected)
		return nil, apperror.PermissionDenied("role %q cannot %s purchase requests", actor.Role, decision)
	}
	if len(comments) > 2000 {
		return nil, apperror.Validation("comments must be at most 2000 characters")
	}

	var outcome decisionOutcome
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.requests.FindForUpdate(txCtx, requestID)
		if err != nil {
			return notFoundOr(err, "purchase request", requestID)
		}

		action := policy.ActionApproveRequest
		if decision == workflow.Reject {
			action = policy.ActionRejectRequest
		}
		// Approvers always hold the action at some status; a miss here means wrong stage.
		if !s.policy.Allowed(actor.Role, action, req.Status, req.RequesterID == actor.UserID) {
			if workflow.IsTerminal(req.Status) {
				return apperror.InvalidTransition("purchase request is already %s", req.Status)
			}
			active, _ := workflow.ActiveLevel(req.Status)
			return apperror.InvalidTransition("purchase request in status %s is awaiting %s, not %s", req.Status, active, level)
		}

		to, err := workflow.Next(req.Status, level, decision)
		if err != nil {
			return err
		}

		err = s.approvals.Decide(txCtx, req.ID, level, repository.Decision{
			Status:     workflow.DecisionStatus(decision),
			ApproverID: actor.UserID,
			Comments:   comments,
			DecidedAt:  s.now(),
		})
		if errors.Is(err, repository.ErrStaleState) {
			return apperror.InvalidTransition("%s has already decided on this request", level)
		}
		if err != nil {
			return fmt.Errorf("failed to record %s decision: %w", level, err)
		}

		err = s.requests.TransitionStatus(txCtx, req.ID, req.Status, to)
		if errors.Is(err, repository.ErrStaleState) {
			return apperror.InvalidTransition("purchase request changed concurrently")
		}
		if err != nil {
			return fmt.Errorf("failed to update request status: %w", err)
		}

		auditAction := model.ActionApproveRequest
		if decision == workflow.Reject {
			auditAction = model.ActionRejectRequest
		}
		entry := auditEntry(actor, auditAction, req.ID.String(), req.Title, map[string]interface{}{
			"level":       level,
			"from_status": req.Status,
			"to_status":   to,
			"comments":    comments,
		})
		if err := s.audits.Log(txCtx, entry); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		outcome = decisionOutcome{requester: req.RequesterID, to: to}
		if !workflow.GeneratesPurchaseOrder(to) {
			return nil
		}
		req.Status = to
		po, err := s.generator.Generate(txCtx, req, actor)
		if err != nil {
			return err
		}
		outcome.order = po

		approvals, err := s.approvals.ListByRequest(txCtx, req.ID)
		if err != nil {
			return fmt.Errorf("failed to load approvals: %w", err)
		}
		outcome.approvers = approverIDs(approvals)
		return nil
	})
	if err != nil {
		if outcome.order != nil {
			// Generated but the commit failed.
			s.generator.Discard(ctx, outcome.order)
		}
		result := metrics.ResultFailed
		switch apperror.KindOf(err) {
		case apperror.KindInvalidTransition, apperror.KindPermissionDenied, apperror.KindNotFound:
			result = metrics.ResultRejected
		}
		metrics.ObserveDecision(string(decision), level, result)
		s.log.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"level":      level,
			"actor_id":   actor.UserID,
		}).Warn("approval decision refused")
		return nil, err
	}

	metrics.ObserveDecision(string(decision), level, metrics.ResultOK)
	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"level":      level,
		"actor_id":   actor.UserID,
		"status":     outcome.to,
	}).Info("approval decision recorded")

	s.publish(requestID, actor, level, decision, outcome)

	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, notFoundOr(err, "purchase request", requestID)
	}
	resp := toPurchaseRequestResponse(*req)
	return &resp, nil
}

func (s *workflowService) publish(requestID uuid.UUID, actor model.Actor, level string, decision workflow.Decision, outcome decisionOutcome) {
	now := s.now()
	eventType := model.EventRequestApproved
	if decision == workflow.Reject {
		eventType = model.EventRequestRejected
	}
	s.notifier.Publish(model.WorkflowEvent{
		Type:       eventType,
		RequestID:  requestID,
		Requester:  outcome.requester,
		Status:     outcome.to,
		Level:      level,
		ActorID:    actor.UserID,
		OccurredAt: now,
	})
	if outcome.order != nil {
		metrics.OrderGenerated()
		s.notifier.Publish(model.WorkflowEvent{
			Type:       model.EventPurchaseOrderGenerated,
			RequestID:  requestID,
			Requester:  outcome.requester,
			Status:     outcome.order.Status,
			PONumber:   outcome.order.PONumber,
			ActorID:    actor.UserID,
			OccurredAt: now,
			Approvers:  outcome.approvers,
		})
	}
}
