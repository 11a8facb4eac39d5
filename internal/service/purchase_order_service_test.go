package service

import (
	"bytes"
	"context"
	"io"
	"testing"

	"p2p/internal/model"
	"p2p/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestFinanceMovesPurchaseOrderFreely(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, summary := env.approvedRequest(t)
	id := uuid.MustParse(summary.ID)

	for _, status := range []string{model.POStatusSent, model.POStatusCompleted, model.POStatusGenerated} {
		resp, err := env.pos.UpdateStatus(ctx, id, env.finance, UpdatePOStatusDTO{Status: status})
		require.NoError(t, err, status)
		assert.Equal(t, status, resp.Status)
	}

	_, err := env.pos.UpdateStatus(ctx, id, env.finance, UpdatePOStatusDTO{Status: "SHIPPED"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = env.pos.UpdateStatus(ctx, id, env.staff, UpdatePOStatusDTO{Status: model.POStatusSent})
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
	_, err = env.pos.UpdateStatus(ctx, uuid.New(), env.finance, UpdatePOStatusDTO{Status: model.POStatusSent})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	logs, total, err := env.audit.GetAuditLogs(ctx, env.finance, AuditFilter{Action: model.ActionUpdatePOStatus})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, "Fay Tester", logs[0].UserName)
}

func TestPurchaseOrderVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, summary := env.approvedRequest(t)
	id := uuid.MustParse(summary.ID)

	for _, actor := range []model.Actor{env.staff, env.level1, env.level2, env.finance} {
		got, err := env.pos.Get(ctx, id, actor)
		require.NoError(t, err, actor.Role)
		assert.Equal(t, summary.PONumber, got.PONumber)
		assert.Equal(t, "Office chairs", got.RequestTitle)
		assert.Len(t, got.Items, 2)

		list, total, err := env.pos.List(ctx, actor, POFilter{})
		require.NoError(t, err, actor.Role)
		assert.EqualValues(t, 1, total, actor.Role)
		assert.Len(t, list, 1)
	}

	_, err := env.pos.Get(ctx, id, env.otherStaff)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
	list, total, err := env.pos.List(ctx, env.otherStaff, POFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	outsider := env.user(t, model.RoleApproverLevel1, "Ola")
	_, err = env.pos.Get(ctx, id, outsider)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	_, total, err = env.pos.List(ctx, env.finance, POFilter{Status: model.POStatusSent})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestExportPurchaseOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, first := env.approvedRequest(t)
	_, second := env.approvedRequest(t)

	_, err := env.pos.Export(ctx, env.staff, "")
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	data, err := env.pos.Export(ctx, env.finance, "")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeaders, rows[0])
	assert.ElementsMatch(t, []string{first.PONumber, second.PONumber}, []string{rows[1][0], rows[2][0]})
	assert.Equal(t, "5000", rows[1][5])
}

func TestOpenPurchaseOrderDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, summary := env.approvedRequest(t)

	rc, name, err := env.pos.OpenDocument(ctx, uuid.MustParse(summary.ID), env.finance)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
	assert.Equal(t, summary.PONumber+".pdf", name)

	_, _, err = env.pos.OpenDocument(ctx, uuid.MustParse(summary.ID), env.otherStaff)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}

func TestAuditLogsAreFinanceOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	_, _, err := env.audit.GetAuditLogs(ctx, env.staff, AuditFilter{})
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	logs, total, err := env.audit.GetAuditLogs(ctx, env.finance, AuditFilter{EntityID: id.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.ActionCreatePurchaseRequest, logs[0].Action)
	assert.Equal(t, env.staff.UserID.String(), logs[0].UserID)
}

func TestGetMe(t *testing.T) {
	env := newTestEnv(t)
	me, err := env.users.GetMe(context.Background(), env.level1)
	require.NoError(t, err)
	assert.Equal(t, "Lena Tester", me.FullName)
	assert.Equal(t, model.RoleApproverLevel1, me.Role)

	_, err = env.users.GetMe(context.Background(), model.Actor{UserID: uuid.New(), Role: model.RoleStaff})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
