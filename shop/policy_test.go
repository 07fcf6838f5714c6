package shop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelationOf(t *testing.T) {
	owner := UserID(7)

	assert.Equal(t, RelAnonymous, RelationOf(Anonymous, owner))
	assert.Equal(t, RelOwner, RelationOf(Subject{UserID: 7}, owner))
	assert.Equal(t, RelOther, RelationOf(Subject{UserID: 8}, owner))
	assert.Equal(t, RelAdmin, RelationOf(Subject{UserID: 7, IsAdmin: true}, owner))
	assert.Equal(t, RelAdmin, RelationOf(System, owner))

	// Nobody owns the catalog, so an authenticated non-admin is "other".
	assert.Equal(t, RelOther, RelationOf(Subject{UserID: 7}, 0))
}

func TestCapabilityTable(t *testing.T) {
	// Rows: operation; columns: anonymous, owner, other, admin.
	matrix := map[Operation][4]bool{
		OpViewPurchases:  {false, true, false, true},
		OpViewRefunds:    {false, true, false, true},
		OpViewUsers:      {false, true, false, true},
		OpCreatePurchase: {false, true, false, true},
		OpRequestRefund:  {false, true, false, true},
		OpDecideRefund:   {false, false, false, true},
		OpReadCatalog:    {true, true, true, true},
		OpWriteCatalog:   {false, false, false, true},
		OpManageUsers:    {false, false, false, true},
		OpRunMaintenance: {false, false, false, true},
	}

	owner := UserID(1)
	subjects := [4]Subject{Anonymous, {UserID: 1}, {UserID: 2}, {UserID: 3, IsAdmin: true}}

	for op, want := range matrix {
		for i, s := range subjects {
			assert.Equal(t, want[i], Allowed(s, op, owner), "%s as %s", op, RelationOf(s, owner))
		}
	}
}

func TestAllowed_UnknownOperationDenied(t *testing.T) {
	assert.False(t, Allowed(System, Operation("drop_tables"), 0))
}

func TestAuthorize_ErrorKinds(t *testing.T) {
	assert.NoError(t, Authorize(Subject{UserID: 1}, OpCreatePurchase, 1))
	assert.ErrorIs(t, Authorize(Anonymous, OpCreatePurchase, 1), ErrUnauthenticated)
	assert.ErrorIs(t, Authorize(Subject{UserID: 2}, OpCreatePurchase, 1), ErrForbidden)
	assert.ErrorIs(t, Authorize(Subject{UserID: 1}, OpDecideRefund, 1), ErrForbidden)
}

func TestVisibleOwner(t *testing.T) {
	assert.Nil(t, VisibleOwner(Subject{UserID: 3, IsAdmin: true}).CustomerID)

	filter := VisibleOwner(Subject{UserID: 3})
	if assert.NotNil(t, filter.CustomerID) {
		assert.Equal(t, UserID(3), *filter.CustomerID)
	}
}

func TestStateOf(t *testing.T) {
	p := &Purchase{ID: 1}
	assert.Equal(t, StatePurchased, StateOf(p, nil))
	assert.Equal(t, StateRefundRequested, StateOf(p, &Refund{PurchaseID: 1}))
	assert.Equal(t, StateRefunded, StateOf(nil, nil))
}

func TestCheckedCost(t *testing.T) {
	cost, ok := checkedCost(3, 5)
	assert.True(t, ok)
	assert.Equal(t, int64(15), cost)

	_, ok = checkedCost(3, 1<<62)
	assert.False(t, ok)

	cost, ok = checkedCost(0, 1<<62)
	assert.True(t, ok)
	assert.Equal(t, int64(0), cost)
}

func TestValidationError_Message(t *testing.T) {
	verr := &ValidationError{}
	assert.NoError(t, verr.OrNil())

	verr.Add("quantity", MsgQuantityMin)
	verr.Add("good_id", MsgFieldRequired)
	assert.Equal(t,
		"validation failed: good_id: This field is required.; quantity: Ensure this value is greater than or equal to 1.",
		verr.Error())
	assert.ErrorIs(t, verr, ErrValidation)
}
