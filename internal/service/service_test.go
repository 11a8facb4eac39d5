package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"p2p/internal/database/dbtest"
	"p2p/internal/document"
	"p2p/internal/model"
	"p2p/internal/policy"
	"p2p/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.WorkflowEvent
}

func (n *recordingNotifier) Publish(e model.WorkflowEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

// switchRenderer fails while fail is set and otherwise delegates.
type switchRenderer struct {
	mu        sync.Mutex
	fail      bool
	inner     document.Renderer
	discarded []string
}

func (r *switchRenderer) setFail(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = v
}

func (r *switchRenderer) Render(ctx context.Context, doc document.PurchaseOrderDocument) (string, error) {
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail {
		return "", errors.New("renderer unavailable")
	}
	return r.inner.Render(ctx, doc)
}

func (r *switchRenderer) Discard(ctx context.Context, handle string) error {
	r.mu.Lock()
	r.discarded = append(r.discarded, handle)
	r.mu.Unlock()
	return r.inner.Discard(ctx, handle)
}

type testEnv struct {
	db        *gorm.DB
	store     document.Store
	renderer  *switchRenderer
	generator PurchaseOrderGenerator
	notifier  *recordingNotifier
	orders    repository.PurchaseOrderRepository
	approvals repository.ApprovalRepository
	requests  PurchaseRequestService
	workflow  WorkflowService
	pos       PurchaseOrderService
	audit     AuditService
	users     UserService

	staff, otherStaff, level1, level2, finance model.Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.Open(t)
	store, err := document.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	authz, err := policy.New(nil)
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		store:    store,
		renderer: &switchRenderer{inner: document.NewPDFRenderer(store, "Test Co")},
		notifier: &recordingNotifier{},
	}

	txManager := repository.NewTransactionManager(db)
	requestRepo := repository.NewPurchaseRequestRepository(db)
	env.approvals = repository.NewApprovalRepository(db)
	env.orders = repository.NewPurchaseOrderRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)

	env.generator = NewPurchaseOrderGenerator(env.orders, auditRepo, repository.NewDBPOSequence(db), env.renderer, nil)
	generator := env.generator
	env.requests = NewPurchaseRequestService(txManager, requestRepo, env.approvals, env.orders, auditRepo, authz,
		document.NewProcessor(document.DefaultMaxUploadSize, nil), store, env.notifier, nil)
	env.workflow = NewWorkflowService(txManager, requestRepo, env.approvals, auditRepo, generator, authz, env.notifier, nil)
	env.pos = NewPurchaseOrderService(txManager, env.orders, env.approvals, auditRepo, authz, store, env.notifier, nil)
	env.audit = NewAuditService(auditRepo, authz)
	env.users = NewUserService(userRepo)

	env.staff = env.user(t, model.RoleStaff, "Sam")
	env.otherStaff = env.user(t, model.RoleStaff, "Olive")
	env.level1 = env.user(t, model.RoleApproverLevel1, "Lena")
	env.level2 = env.user(t, model.RoleApproverLevel2, "Leo")
	env.finance = env.user(t, model.RoleFinance, "Fay")
	return env
}

func (e *testEnv) user(t *testing.T, role, name string) model.Actor {
	t.Helper()
	u := model.User{Email: fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]), FirstName: name, LastName: "Tester", Role: role}
	require.NoError(t, e.db.Create(&u).Error)
	return model.Actor{UserID: u.ID, Role: role}
}

// officeChairs is the canonical request: 10 × 300 + 10 × 200 = 5000.00.
func officeChairs(amount string) CreatePurchaseRequestDTO {
	return CreatePurchaseRequestDTO{
		Title:       "Office chairs",
		Description: "Ergonomic chairs for the new floor",
		Amount:      amount,
		Items: []RequestItemInput{
			{ItemName: "Chair", Quantity: 10, UnitPrice: "300"},
			{ItemName: "Footrest", Quantity: 10, UnitPrice: "200"},
		},
	}
}

func (e *testEnv) createRequest(t *testing.T) uuid.UUID {
	t.Helper()
	resp, err := e.requests.Create(context.Background(), e.staff, officeChairs("5000.00"))
	require.NoError(t, err)
	return uuid.MustParse(resp.ID)
}

func (e *testEnv) approvedRequest(t *testing.T) (uuid.UUID, *PurchaseOrderSummary) {
	t.Helper()
	ctx := context.Background()
	id := e.createRequest(t)
	_, err := e.workflow.Approve(ctx, id, e.level1, "ok")
	require.NoError(t, err)
	resp, err := e.workflow.Approve(ctx, id, e.level2, "ok")
	require.NoError(t, err)
	require.NotNil(t, resp.PurchaseOrder)
	return id, resp.PurchaseOrder
}
