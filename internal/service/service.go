package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"p2p/internal/model"
	"p2p/internal/repository"
	"p2p/pkg/apperror"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Notifier receives workflow events after their transaction commits. Publish must not block.
type Notifier interface {
	Publish(event model.WorkflowEvent)
}

type nopNotifier struct{}

func (nopNotifier) Publish(model.WorkflowEvent) {}

// Authorizer answers access policy questions.
type Authorizer interface {
	Allowed(role, action, status string, isOwner bool) bool
	StatusesFor(role, action string, candidates ...string) []string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the validate tags on v and reports the first failure as a validation error.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Namespace())
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			return apperror.Validation("%s failed %s=%s", field, fe.Tag(), fe.Param())
		}
		return apperror.Validation("%s failed %s", field, fe.Tag())
	}
	return apperror.Validation("%v", err)
}

// notFoundOr maps a missing row to a NotFound error and wraps everything else.
func notFoundOr(err error, what string, id uuid.UUID) error {
	if repository.IsNotFound(err) {
		return apperror.NotFound("%s %s not found", what, id)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func auditEntry(actor model.Actor, action, entityID, entityName string, details map[string]interface{}) *model.AuditLog {
	userID := actor.UserID
	payload := "{}"
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			payload = string(b)
		}
	}
	entry := &model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    payload,
	}
	if userID != uuid.Nil {
		entry.UserID = &userID
	}
	return entry
}

// approverIDs lists the users who approved at any level.
func approverIDs(approvals []model.Approval) []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range approvals {
		if a.Status == model.ApprovalApproved && a.ApproverID != nil {
			ids = append(ids, *a.ApproverID)
		}
	}
	return ids
}

func componentLogger(logger *logrus.Logger, component string) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithField("component", component)
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// extractedFields decodes a stored extracted_data document. Invalid JSON yields an empty map.
func extractedFields(raw string) map[string]interface{} {
	out := map[string]interface{}{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
