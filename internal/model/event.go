package model

import (
	"time"

	"github.com/google/uuid"
)

// Workflow event types pushed to live subscribers after a transaction commits.
const (
	EventRequestCreated         = "purchase_request.created"
	EventRequestUpdated         = "purchase_request.updated"
	EventRequestApproved        = "purchase_request.approved"
	EventRequestRejected        = "purchase_request.rejected"
	EventPurchaseOrderGenerated = "purchase_order.generated"
	EventPurchaseOrderUpdated   = "purchase_order.status_updated"
)

// WorkflowEvent is the payload broadcast over the websocket hub.
type WorkflowEvent struct {
	Type       string    `json:"type"`
	RequestID  uuid.UUID `json:"request_id"`
	Requester  uuid.UUID `json:"requester_id"`
	Status     string    `json:"status,omitempty"`
	Level      string    `json:"level,omitempty"`
	PONumber   string    `json:"po_number,omitempty"`
	ActorID    uuid.UUID `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`

	// Approvers who approved the request; order events are visible to them.
	Approvers []uuid.UUID `json:"-"`
}

// IsOrderEvent reports whether the event concerns a purchase order rather than its request.
func (e WorkflowEvent) IsOrderEvent() bool {
	return e.Type == EventPurchaseOrderGenerated || e.Type == EventPurchaseOrderUpdated
}
