// Package policy decides which role may perform which action on a purchase request
// or purchase order in a given status. The rules live in an embedded casbin table.
package policy

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/sirupsen/logrus"
)

// Actions checked against the table.
const (
	ActionCreateRequest  = "request.create"
	ActionUpdateRequest  = "request.update"
	ActionDeleteRequest  = "request.delete"
	ActionViewRequest    = "request.view"
	ActionApproveRequest = "request.approve"
	ActionRejectRequest  = "request.reject"
	ActionUploadProforma = "request.upload_proforma"
	ActionUploadReceipt  = "request.upload_receipt"
	ActionViewOrder      = "order.view"
	ActionUpdateOrder    = "order.update_status"
	ActionExportOrders   = "order.export"
	ActionViewAuditLogs  = "audit.view"
)

// AnyStatus is passed when the action is not scoped to a status.
const AnyStatus = "*"

//go:embed model.conf
var modelText string

//go:embed policy.csv
var policyText string

// Policy answers allow/deny questions. Safe for concurrent use.
type Policy struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
	logger   *logrus.Entry
}

// New builds a Policy from the embedded rule table.
func New(logger *logrus.Logger) (*Policy, error) {
	return NewFromText(policyText, logger)
}

// NewFromText builds a Policy from a CSV rule table in the embedded model's format.
func NewFromText(rules string, logger *logrus.Logger) (*Policy, error) {
	m, err := casbinmodel.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("policy: failed to parse model: %w", err)
	}
	enf, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(strings.TrimSpace(rules)))
	if err != nil {
		return nil, fmt.Errorf("policy: failed to initialize enforcer: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Policy{
		enforcer: enf,
		logger:   logger.WithField("component", "policy"),
	}, nil
}

// Allowed reports whether role may perform action on an entity in status.
// isOwner is true when the caller created the request the action targets.
func (p *Policy) Allowed(role, action, status string, isOwner bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ok, err := p.enforcer.Enforce(role, action, status, strconv.FormatBool(isOwner))
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"role":   role,
			"action": action,
			"status": status,
		}).Error("policy evaluation failed, denying")
		return false
	}
	return ok
}

// StatusesFor returns the candidate statuses in which role may perform action
// without being the owner. List queries use it to scope what a role can see.
func (p *Policy) StatusesFor(role, action string, candidates ...string) []string {
	var statuses []string
	for _, st := range candidates {
		if p.Allowed(role, action, st, false) {
			statuses = append(statuses, st)
		}
	}
	return statuses
}
