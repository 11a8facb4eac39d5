package service

import (
	"context"
	"fmt"

	"p2p/internal/model"
	"p2p/internal/policy"
	"p2p/internal/repository"
	"p2p/pkg/apperror"
	"p2p/pkg/pagination"
)

type AuditService interface {
	GetAuditLogs(ctx context.Context, actor model.Actor, filter AuditFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo   repository.AuditRepository
	policy Authorizer
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository, authz Authorizer) AuditService {
	return &auditService{repo: repo, policy: authz}
}

// GetAuditLogs retrieves paginated records with users pre-loaded, newest first
func (s *auditService) GetAuditLogs(ctx context.Context, actor model.Actor, filter AuditFilter) ([]AuditLogResponse, int64, error) {
	if !s.policy.Allowed(actor.Role, policy.ActionViewAuditLogs, policy.AnyStatus, false) {
		return nil, 0, apperror.PermissionDenied("role %q cannot view audit logs", actor.Role)
	}
	params := pagination.Normalize(filter.Page, filter.Limit)
	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		Action:   filter.Action,
		EntityID: filter.EntityID,
		Page:     params.Page,
		Limit:    params.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		userName := "System"
		userID := ""
		if l.User != nil {
			userName = l.User.FullName()
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			UserName:   userName,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return res, total, nil
}
