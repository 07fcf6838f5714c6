package shop

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRefundWindow is how long after a purchase a refund may be requested.
const DefaultRefundWindow = 3 * time.Minute

// Service orchestrates settlement, refunds and the catalog.
// Every exported method authorizes the subject before reading targets it
// does not need for the decision.
type Service struct {
	Store        TxStore
	Notifier     Notifier
	Clock        Clock
	Logger       *slog.Logger
	RefundWindow time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.Notifier = n } }

func WithClock(c Clock) Option { return func(s *Service) { s.Clock = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.Logger = l } }

func WithRefundWindow(d time.Duration) Option { return func(s *Service) { s.RefundWindow = d } }

// NewService creates a service over store.
func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{
		Store:        store,
		Notifier:     NopNotifier{},
		Clock:        SystemClock{},
		Logger:       slog.Default(),
		RefundWindow: DefaultRefundWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Logger = s.Logger.With("component", "shop")
	return s
}

func (s *Service) now() time.Time {
	return s.Clock.Now().UTC()
}

func (s *Service) publish(ctx context.Context, evt Event) {
	// Events go out after commit; the request context may already be done.
	s.Notifier.Notify(context.WithoutCancel(ctx), evt)
}
