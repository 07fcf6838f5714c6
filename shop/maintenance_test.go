package shop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shop-engine/shop"
	"github.com/warp/shop-engine/shop/store"
)

func pendingRefunds(t *testing.T, f *fixture, customer shop.Subject, good shop.GoodID, n int) []shop.PurchaseID {
	t.Helper()
	var ids []shop.PurchaseID
	for i := 0; i < n; i++ {
		p := f.buy(t, customer, good, 1)
		_, _, err := f.svc.RequestRefund(context.Background(), customer, p.ID)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	return ids
}

func TestDeclineAllRefunds(t *testing.T) {
	// GIVEN: three pending refunds
	// WHEN: the daily decline job runs
	// THEN: every refund is gone, every purchase stands, the run is recorded

	f := newFixture(t)
	customer := f.customer(t, 1000)
	good := f.good(t, 10, 10)
	purchases := pendingRefunds(t, f, customer, good, 3)
	ctx := context.Background()

	result, err := f.svc.DeclineAllRefunds(ctx, shop.System)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.NotEmpty(t, result.RunID)

	refunds, err := f.svc.ListRefunds(ctx, shop.System)
	require.NoError(t, err)
	assert.Empty(t, refunds)
	for _, id := range purchases {
		_, err := f.store.GetPurchase(ctx, id)
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(970), f.wallet(t, customer))

	runs, err := f.svc.ListMaintenanceRuns(ctx, shop.System, shop.JobDeclineRefunds)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, shop.RunCompleted, runs[0].Status)
	assert.Equal(t, 3, runs[0].Processed)
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestApproveAllRefunds(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, 1000)
	bob := f.customer(t, 1000)
	good := f.good(t, 10, 10)
	pendingRefunds(t, f, alice, good, 2)
	pendingRefunds(t, f, bob, good, 1)
	kept := f.buy(t, bob, good, 1)
	ctx := context.Background()

	result, err := f.svc.ApproveAllRefunds(ctx, shop.System)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)

	assert.Equal(t, int64(1000), f.wallet(t, alice))
	assert.Equal(t, int64(990), f.wallet(t, bob))
	assert.Equal(t, int64(9), f.stock(t, good))

	remaining, err := f.svc.ListPurchases(ctx, shop.System)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, kept.ID, remaining[0].ID)
}

func TestApproveAllRefunds_EmptyQueue(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.ApproveAllRefunds(context.Background(), shop.System)
	require.NoError(t, err)
	assert.Equal(t, shop.BulkResult{RunID: result.RunID}, result)
}

func TestBulkJobs_AdminOnly(t *testing.T) {
	f := newFixture(t)
	customer := f.customer(t, 1000)
	ctx := context.Background()

	_, err := f.svc.DeclineAllRefunds(ctx, customer)
	assert.ErrorIs(t, err, shop.ErrForbidden)
	_, err = f.svc.ApproveAllRefunds(ctx, customer)
	assert.ErrorIs(t, err, shop.ErrForbidden)
	_, err = f.svc.ListMaintenanceRuns(ctx, customer, "")
	assert.ErrorIs(t, err, shop.ErrForbidden)
}

func TestApproveAllRefunds_FailuresMarkRunFailed(t *testing.T) {
	// GIVEN: two pending refunds and stock that cannot be adjusted
	// WHEN: the approve job runs
	// THEN: both refunds fail and stay pending, the run is recorded as failed

	f := newFixture(t)
	customer := f.customer(t, 1000)
	good := f.good(t, 10, 10)
	pendingRefunds(t, f, customer, good, 2)
	ctx := context.Background()

	broken := shop.NewService(&failingStockTx{TxMemory: f.store}, shop.WithClock(shop.ClockFunc(f.clock)))
	result, err := broken.ApproveAllRefunds(ctx, shop.System)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 2, result.Failed)

	assert.Equal(t, int64(980), f.wallet(t, customer))
	refunds, err := f.svc.ListRefunds(ctx, shop.System)
	require.NoError(t, err)
	assert.Len(t, refunds, 2)

	runs, err := f.svc.ListMaintenanceRuns(ctx, shop.System, shop.JobApproveRefunds)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID)
	assert.Equal(t, shop.RunFailed, runs[0].Status)
	assert.Equal(t, 2, runs[0].Failed)
	assert.Equal(t, "2 of 2 refunds failed", runs[0].Error)
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestDeclineAllRefunds_SkipsVanishedRefunds(t *testing.T) {
	// GIVEN: one pending refund, and a listing that also names a refund
	//        already decided elsewhere
	// WHEN: the decline job runs
	// THEN: the real refund is declined, the vanished one is skipped,
	//       and the run still completes

	f := newFixture(t)
	customer := f.customer(t, 1000)
	good := f.good(t, 10, 10)
	pendingRefunds(t, f, customer, good, 1)
	ctx := context.Background()

	svc := shop.NewService(&vanishedRefundTx{TxMemory: f.store}, shop.WithClock(shop.ClockFunc(f.clock)))
	result, err := svc.DeclineAllRefunds(ctx, shop.System)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	runs, err := f.svc.ListMaintenanceRuns(ctx, shop.System, shop.JobDeclineRefunds)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, shop.RunCompleted, runs[0].Status)
	assert.Equal(t, 1, runs[0].Skipped)
	assert.Empty(t, runs[0].Error)
}

// vanishedRefundTx lists one extra refund that no longer exists.
type vanishedRefundTx struct {
	*store.TxMemory
}

func (v *vanishedRefundTx) ListRefunds(ctx context.Context, filter shop.OwnerFilter) ([]shop.Refund, error) {
	refunds, err := v.TxMemory.ListRefunds(ctx, filter)
	if err != nil {
		return nil, err
	}
	return append(refunds, shop.Refund{ID: 9999}), nil
}
