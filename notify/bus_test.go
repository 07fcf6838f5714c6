package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shop-engine/notify"
	"github.com/warp/shop-engine/shop"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func depleted(id shop.GoodID) shop.GoodDepleted {
	return shop.GoodDepleted{GoodID: id}
}

func TestBus_DispatchesByName(t *testing.T) {
	bus := notify.NewBus(quietLogger(), 8, 1)

	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(tag string) notify.Handler {
		return func(_ context.Context, evt shop.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, tag+":"+evt.EventName())
			return nil
		}
	}
	bus.Subscribe(shop.EventGoodDepleted, record("depleted"))
	bus.SubscribeAll(record("all"))

	bus.Notify(context.Background(), depleted(1))
	bus.Notify(context.Background(), shop.RefundDeclined{})
	bus.Close()

	assert.Equal(t, []string{
		"depleted:" + shop.EventGoodDepleted,
		"all:" + shop.EventGoodDepleted,
		"all:" + shop.EventRefundDeclined,
	}, seen)
}

func TestBus_PanicAndErrorIsolated(t *testing.T) {
	// GIVEN: a panicking handler and a failing handler ahead of a good one
	// THEN: the good handler still runs, both failures are reported

	bus := notify.NewBus(quietLogger(), 1, 1)
	defer bus.Close()

	ran := false
	bus.Subscribe(shop.EventGoodDepleted, func(context.Context, shop.Event) error { panic("boom") })
	bus.Subscribe(shop.EventGoodDepleted, func(context.Context, shop.Event) error { return errors.New("nope") })
	bus.Subscribe(shop.EventGoodDepleted, func(context.Context, shop.Event) error { ran = true; return nil })

	errs := bus.Publish(context.Background(), depleted(1))

	assert.Len(t, errs, 2)
	assert.True(t, ran)
}

func TestBus_NotifyNeverBlocks(t *testing.T) {
	bus := notify.NewBus(quietLogger(), 1, 1)

	release := make(chan struct{})
	handled := make(chan struct{}, 10)
	bus.Subscribe(shop.EventGoodDepleted, func(context.Context, shop.Event) error {
		<-release
		handled <- struct{}{}
		return nil
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Notify(context.Background(), depleted(shop.GoodID(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(release)
	bus.Close()
	assert.LessOrEqual(t, len(handled), 2, "one in flight, one queued, the rest dropped")
	assert.GreaterOrEqual(t, len(handled), 1)
}

func TestBus_NotifyAfterCloseIsDropped(t *testing.T) {
	bus := notify.NewBus(quietLogger(), 1, 1)
	bus.Close()
	bus.Close()

	require.NotPanics(t, func() {
		bus.Notify(context.Background(), depleted(1))
	})
}
