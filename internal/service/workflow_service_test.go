package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"

	"p2p/internal/document"
	"p2p/internal/model"
	"p2p/internal/repository"
	"p2p/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var poNumberPattern = regexp.MustCompile(`^PO-\d{8}-\d{4}$`)

func approvalByLevel(t *testing.T, resp *PurchaseRequestResponse, level string) ApprovalResponse {
	t.Helper()
	for _, a := range resp.Approvals {
		if a.Level == level {
			return a
		}
	}
	t.Fatalf("no approval at %s", level)
	return ApprovalResponse{}
}

func TestTwoLevelApprovalGeneratesOnePurchaseOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	resp, err := env.workflow.Approve(ctx, id, env.level1, "within budget")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApprovedLevel1, resp.Status)
	assert.Equal(t, model.ApprovalApproved, approvalByLevel(t, resp, model.ApprovalLevel1).Status)
	assert.Equal(t, model.ApprovalPending, approvalByLevel(t, resp, model.ApprovalLevel2).Status)
	assert.Nil(t, resp.PurchaseOrder)

	resp, err = env.workflow.Approve(ctx, id, env.level2, "")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, resp.Status)
	l2 := approvalByLevel(t, resp, model.ApprovalLevel2)
	assert.Equal(t, model.ApprovalApproved, l2.Status)
	require.NotNil(t, l2.ApproverID)
	assert.Equal(t, env.level2.UserID.String(), *l2.ApproverID)
	require.NotNil(t, resp.PurchaseOrder)
	assert.Regexp(t, poNumberPattern, resp.PurchaseOrder.PONumber)
	assert.Equal(t, model.POStatusGenerated, resp.PurchaseOrder.Status)

	n, err := env.orders.CountByRequest(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	po, err := env.orders.FindByRequestID(ctx, id)
	require.NoError(t, err)
	assert.True(t, po.TotalAmount.Equal(decimal.RequireFromString("5000.00")))
	require.NotNil(t, po.CreatedByID)
	assert.Equal(t, env.level2.UserID, *po.CreatedByID)

	rc, err := env.store.Open(ctx, po.DocumentRef)
	require.NoError(t, err)
	_ = rc.Close()

	assert.Equal(t, []string{
		model.EventRequestCreated,
		model.EventRequestApproved,
		model.EventRequestApproved,
		model.EventPurchaseOrderGenerated,
	}, env.notifier.types())
}

func TestRejectAtLevel1IsFinal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	resp, err := env.workflow.Reject(ctx, id, env.level1, "too expensive")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusRejected, resp.Status)
	assert.Equal(t, "too expensive", approvalByLevel(t, resp, model.ApprovalLevel1).Comments)

	_, err = env.workflow.Approve(ctx, id, env.level2, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	_, err = env.workflow.Approve(ctx, id, env.level1, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	n, err := env.orders.CountByRequest(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRejectAtLevel2(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	_, err := env.workflow.Approve(ctx, id, env.level1, "")
	require.NoError(t, err)
	resp, err := env.workflow.Reject(ctx, id, env.level2, "not this quarter")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusRejected, resp.Status)
	assert.Nil(t, resp.PurchaseOrder)
}

func TestNonApproversAreDenied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	_, err := env.workflow.Approve(ctx, id, env.staff, "approving my own")
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
	_, err = env.workflow.Reject(ctx, id, env.finance, "")
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	got, err := env.requests.Get(ctx, id, env.staff)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, got.Status)
}

func TestLevel2CannotActBeforeLevel1(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	_, err := env.workflow.Approve(ctx, id, env.level2, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	_, err = env.workflow.Reject(ctx, id, env.level2, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	approvals, err := env.approvals.ListByRequest(ctx, id)
	require.NoError(t, err)
	for _, a := range approvals {
		assert.Equal(t, model.ApprovalPending, a.Status, a.Level)
		assert.Nil(t, a.ApproverID)
	}
}

func TestApproveUnknownRequest(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.workflow.Approve(context.Background(), uuid.New(), env.level1, "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRetriedDecisionIsRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	_, err := env.workflow.Approve(ctx, id, env.level1, "")
	require.NoError(t, err)
	_, err = env.workflow.Approve(ctx, id, env.level1, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	id2, _ := env.approvedRequest(t)
	_, err = env.workflow.Approve(ctx, id2, env.level2, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	n, err := env.orders.CountByRequest(ctx, id2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	logs, total, err := env.audit.GetAuditLogs(ctx, env.finance, AuditFilter{Action: model.ActionApproveRequest, EntityID: id.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, logs, 1)
}

func TestCommentsTooLong(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRequest(t)
	_, err := env.workflow.Approve(context.Background(), id, env.level1, strings.Repeat("x", 2001))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestConcurrentApprovalsSucceedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.workflow.Approve(ctx, id, env.level1, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperror.KindOf(err) == apperror.KindInvalidTransition:
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, refused)
}

func TestConcurrentFinalApprovalsGetUniqueNumbers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 6
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		id := env.createRequest(t)
		_, err := env.workflow.Approve(ctx, id, env.level1, "")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			resp, err := env.workflow.Approve(ctx, id, env.level2, "")
			if !assert.NoError(t, err) || !assert.NotNil(t, resp.PurchaseOrder) {
				return
			}
			numbers <- resp.PurchaseOrder.PONumber
		}(id)
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		assert.False(t, seen[num], "duplicate %s", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
}

func TestGenerationFailureRollsBackFinalApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)
	_, err := env.workflow.Approve(ctx, id, env.level1, "")
	require.NoError(t, err)

	env.renderer.setFail(true)
	_, err = env.workflow.Approve(ctx, id, env.level2, "")
	require.ErrorIs(t, err, apperror.ErrGenerationFailed)

	got, err := env.requests.Get(ctx, id, env.level2)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApprovedLevel1, got.Status)
	assert.Equal(t, model.ApprovalPending, approvalByLevel(t, got, model.ApprovalLevel2).Status)
	assert.Nil(t, got.PurchaseOrder)
	n, err := env.orders.CountByRequest(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.renderer.setFail(false)
	resp, err := env.workflow.Approve(ctx, id, env.level2, "")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, resp.Status)
	require.NotNil(t, resp.PurchaseOrder)
	// The rolled back attempt gave its number back.
	assert.True(t, strings.HasSuffix(resp.PurchaseOrder.PONumber, "-0001"), resp.PurchaseOrder.PONumber)
}

func TestOrderEventsNameApprovers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, summary := env.approvedRequest(t)
	_, err := env.pos.UpdateStatus(ctx, uuid.MustParse(summary.ID), env.finance, UpdatePOStatusDTO{Status: model.POStatusSent})
	require.NoError(t, err)

	env.notifier.mu.Lock()
	defer env.notifier.mu.Unlock()
	var orderEvents int
	for _, e := range env.notifier.events {
		if !e.IsOrderEvent() {
			assert.Empty(t, e.Approvers, e.Type)
			continue
		}
		orderEvents++
		assert.ElementsMatch(t, []uuid.UUID{env.level1.UserID, env.level2.UserID}, e.Approvers, e.Type)
	}
	assert.Equal(t, 2, orderEvents)
}

func TestDiscardKeepsDocumentOfReusedNumber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	txManager := repository.NewTransactionManager(env.db)
	requests := repository.NewPurchaseRequestRepository(env.db)
	firstID := env.createRequest(t)
	secondID := env.createRequest(t)

	var first, second *model.PurchaseOrder
	errCommit := errors.New("commit failed")
	err := txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := requests.FindByID(txCtx, firstID)
		require.NoError(t, err)
		first, err = env.generator.Generate(txCtx, req, env.level2)
		require.NoError(t, err)
		return errCommit
	})
	require.ErrorIs(t, err, errCommit)

	err = txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := requests.FindByID(txCtx, secondID)
		require.NoError(t, err)
		second, err = env.generator.Generate(txCtx, req, env.level2)
		return err
	})
	require.NoError(t, err)

	// The rolled back number is handed out again, the document is not shared.
	assert.Equal(t, first.PONumber, second.PONumber)
	assert.NotEqual(t, first.DocumentRef, second.DocumentRef)

	env.generator.Discard(ctx, first)
	_, err = env.store.Open(ctx, first.DocumentRef)
	assert.ErrorIs(t, err, document.ErrNotFound)

	rc, err := env.store.Open(ctx, second.DocumentRef)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	rc, _, err = env.pos.OpenDocument(ctx, second.ID, env.finance)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestEditingRejectedRequestRestartsChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)
	_, err := env.workflow.Approve(ctx, id, env.level1, "")
	require.NoError(t, err)
	_, err = env.workflow.Reject(ctx, id, env.level2, "wrong vendor")
	require.NoError(t, err)

	title := "Office chairs (new vendor)"
	resp, err := env.requests.Update(ctx, id, env.staff, UpdatePurchaseRequestDTO{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, resp.Status)
	assert.Equal(t, title, resp.Title)
	for _, a := range resp.Approvals {
		assert.Equal(t, model.ApprovalPending, a.Status)
		assert.Nil(t, a.ApproverID)
		assert.Nil(t, a.DecidedAt)
		assert.Empty(t, a.Comments)
	}

	_, err = env.workflow.Approve(ctx, id, env.level1, "")
	require.NoError(t, err)
	final, err := env.workflow.Approve(ctx, id, env.level2, "")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, final.Status)
}
