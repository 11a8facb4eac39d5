package service

import (
	"context"
	"testing"

	"p2p/internal/model"
	"p2p/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const proformaText = `Vendor: Acme Office Supplies Ltd
Address: 12 Market Street, Springfield
Contact: sales@acme.example.com
Phone: 555-123-4567
Total: $5,000.00
`

func TestCreateRequestValidatesAmountAgainstItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.requests.Create(ctx, env.staff, officeChairs("4999.99"))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	resp, err := env.requests.Create(ctx, env.staff, officeChairs("5000.00"))
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, resp.Status)
	assert.Equal(t, "5000.00", resp.Amount)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "3000.00", resp.Items[0].TotalPrice)
	assert.Equal(t, "2000.00", resp.Items[1].TotalPrice)
	require.Len(t, resp.Approvals, 2)
	for _, a := range resp.Approvals {
		assert.Equal(t, model.ApprovalPending, a.Status)
	}
	assert.Equal(t, "Sam Tester", resp.RequesterName)
}

func TestCreateRequestRejectsMalformedPayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := map[string]func(*CreatePurchaseRequestDTO){
		"missing title":     func(d *CreatePurchaseRequestDTO) { d.Title = "" },
		"no items":          func(d *CreatePurchaseRequestDTO) { d.Items = nil },
		"zero quantity":     func(d *CreatePurchaseRequestDTO) { d.Items[0].Quantity = 0 },
		"negative quantity": func(d *CreatePurchaseRequestDTO) { d.Items[0].Quantity = -1 },
		"bad price":         func(d *CreatePurchaseRequestDTO) { d.Items[0].UnitPrice = "abc" },
		"too precise":       func(d *CreatePurchaseRequestDTO) { d.Amount = "5000.001" },
		"zero amount": func(d *CreatePurchaseRequestDTO) {
			d.Amount = "0"
			d.Items = []RequestItemInput{{ItemName: "Free sample", Quantity: 1, UnitPrice: "0"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			dto := officeChairs("5000.00")
			mutate(&dto)
			_, err := env.requests.Create(ctx, env.staff, dto)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestOnlyStaffCreateRequests(t *testing.T) {
	env := newTestEnv(t)
	for _, actor := range []model.Actor{env.level1, env.level2, env.finance} {
		_, err := env.requests.Create(context.Background(), actor, officeChairs("5000.00"))
		assert.ErrorIs(t, err, apperror.ErrPermissionDenied, actor.Role)
	}
}

func TestUpdateRequiresOwnerAndEditableStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)
	title := "Renamed"

	_, err := env.requests.Update(ctx, id, env.otherStaff, UpdatePurchaseRequestDTO{Title: &title})
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	amount := "6000.00"
	_, err = env.requests.Update(ctx, id, env.staff, UpdatePurchaseRequestDTO{Amount: &amount})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	resp, err := env.requests.Update(ctx, id, env.staff, UpdatePurchaseRequestDTO{
		Amount: &amount,
		Items:  []RequestItemInput{{ItemName: "Desk", Quantity: 4, UnitPrice: "1500"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "6000.00", resp.Amount)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Desk", resp.Items[0].ItemName)

	_, err = env.workflow.Approve(ctx, id, env.level1, "")
	require.NoError(t, err)
	_, err = env.requests.Update(ctx, id, env.staff, UpdatePurchaseRequestDTO{Title: &title})
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}

func TestDeleteRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	assert.ErrorIs(t, env.requests.Delete(ctx, id, env.otherStaff), apperror.ErrPermissionDenied)
	require.NoError(t, env.requests.Delete(ctx, id, env.staff))

	_, err := env.requests.Get(ctx, id, env.staff)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, env.requests.Delete(ctx, uuid.New(), env.staff), apperror.ErrNotFound)

	approved, _ := env.approvedRequest(t)
	assert.ErrorIs(t, env.requests.Delete(ctx, approved, env.staff), apperror.ErrPermissionDenied)
}

func TestGetRequestFollowsViewPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	_, err := env.requests.Get(ctx, id, env.staff)
	assert.NoError(t, err)
	_, err = env.requests.Get(ctx, id, env.level1)
	assert.NoError(t, err)
	_, err = env.requests.Get(ctx, id, env.otherStaff)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
	_, err = env.requests.Get(ctx, id, env.level2)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
	_, err = env.requests.Get(ctx, id, env.finance)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}

func TestListRequestsScopedByRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending := env.createRequest(t)
	atLevel2 := env.createRequest(t)
	_, err := env.workflow.Approve(ctx, atLevel2, env.level1, "")
	require.NoError(t, err)
	approved, _ := env.approvedRequest(t)
	_, err = env.requests.Create(ctx, env.otherStaff, officeChairs("5000.00"))
	require.NoError(t, err)

	ids := func(actor model.Actor, filter RequestFilter) []string {
		t.Helper()
		list, total, err := env.requests.List(ctx, actor, filter)
		require.NoError(t, err)
		assert.EqualValues(t, len(list), total)
		out := make([]string, 0, len(list))
		for _, r := range list {
			out = append(out, r.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []string{pending.String(), atLevel2.String(), approved.String()}, ids(env.staff, RequestFilter{}))
	assert.Len(t, ids(env.level1, RequestFilter{}), 2) // both PENDING requests
	assert.Equal(t, []string{atLevel2.String()}, ids(env.level2, RequestFilter{}))
	assert.Equal(t, []string{approved.String()}, ids(env.finance, RequestFilter{}))

	assert.Equal(t, []string{pending.String()}, ids(env.staff, RequestFilter{Status: model.RequestStatusPending}))
	assert.Empty(t, ids(env.level1, RequestFilter{Search: "no such title"}))
	assert.Len(t, ids(env.staff, RequestFilter{Search: "ERGONOMIC"}), 3)

	_, _, err = env.requests.List(ctx, env.staff, RequestFilter{Status: "DRAFT"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestUploadProformaFeedsPurchaseOrderVendor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRequest(t)

	_, err := env.requests.UploadProforma(ctx, id, env.otherStaff, "quote.txt", []byte(proformaText))
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
	_, err = env.requests.UploadProforma(ctx, id, env.staff, "empty.txt", nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	resp, err := env.requests.UploadProforma(ctx, id, env.staff, "../quote.txt", []byte(proformaText))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ProformaPath)
	assert.NotContains(t, resp.ProformaPath, "..")
	assert.Equal(t, "Acme Office Supplies Ltd", resp.ExtractedData["vendor_name"])
	assert.Equal(t, "sales@acme.example.com", resp.ExtractedData["vendor_email"])
	assert.Equal(t, "5000.00", resp.ExtractedData["total_amount"])

	_, err = env.workflow.Approve(ctx, id, env.level1, "")
	require.NoError(t, err)
	_, err = env.workflow.Approve(ctx, id, env.level2, "")
	require.NoError(t, err)

	po, err := env.orders.FindByRequestID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme Office Supplies Ltd", po.VendorName)
	assert.Equal(t, "12 Market Street, Springfield", po.VendorAddress)
	assert.Equal(t, "sales@acme.example.com", po.VendorEmail)
	assert.Equal(t, "555-123-4567", po.VendorPhone)
}

func TestUploadReceiptChecksPurchaseOrderTotal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending := env.createRequest(t)
	_, err := env.requests.UploadReceipt(ctx, pending, env.staff, "receipt.txt", []byte("Total: 5000.00"))
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	id, _ := env.approvedRequest(t)

	resp, err := env.requests.UploadReceipt(ctx, id, env.staff, "receipt.txt", []byte("Receipt\nTotal: $5,020.00\n"))
	require.NoError(t, err)
	require.NotNil(t, resp.Validation)
	assert.True(t, resp.Validation.Valid)
	assert.NotEmpty(t, resp.Request.ReceiptPath)

	resp, err = env.requests.UploadReceipt(ctx, id, env.finance, "receipt.txt", []byte("Receipt\nTotal: $6,000.00\n"))
	require.NoError(t, err)
	assert.False(t, resp.Validation.Valid)
	assert.Equal(t, "Amount mismatch", resp.Validation.Message)

	_, err = env.requests.UploadReceipt(ctx, id, env.otherStaff, "receipt.txt", []byte("Total: 5000.00"))
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}
