package service

import (
	"context"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/core/policy"
	"github.com/rl1809/pos-core/internal/port"
)

const (
	defaultMaxRetries   = 5
	defaultRetryBackoff = 5 * time.Millisecond
	defaultPageSize     = 100
)

// Option configures a Core.
type Option func(*executor)

func WithLogger(logger *zap.Logger) Option {
	return func(e *executor) { e.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *executor) { e.tracer = tracer }
}

func WithPolicies(p policy.Policies) Option {
	return func(e *executor) { e.policies = p }
}

// WithRetry sets how often a conflicting unit of work is re-run and the
// initial backoff between attempts.
func WithRetry(maxRetries uint64, initial time.Duration) Option {
	return func(e *executor) {
		e.maxRetries = maxRetries
		e.retryBackoff = initial
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *executor) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *executor) { e.newID = newID }
}

// WithPageSize sets the page size used by paged catalog scans.
func WithPageSize(n int) Option {
	return func(e *executor) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// executor runs units of work: locks, one store transaction, bounded retry
// on conflicts and event publication after commit.
type executor struct {
	store     port.Store
	locker    port.Locker
	publisher port.EventPublisher
	policies  policy.Policies

	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string

	maxRetries   uint64
	retryBackoff time.Duration
	pageSize     int
}

func newExecutor(store port.Store, locker port.Locker, publisher port.EventPublisher, opts ...Option) *executor {
	e := &executor{
		store:        store,
		locker:       locker,
		publisher:    publisher,
		policies:     policy.Default(),
		logger:       zap.NewNop(),
		tracer:       otel.Tracer("pos-core"),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
		pageSize:     defaultPageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// unitOfWork is the transaction handed to an operation plus the events it
// wants published once the transaction commits.
type unitOfWork struct {
	port.Tx
	locked []string
	events []domain.Event
}

// holds reports whether key was locked for this unit of work.
func (u *unitOfWork) holds(key string) bool {
	return slices.Contains(u.locked, key)
}

func (u *unitOfWork) emit(e domain.Event) {
	u.events = append(u.events, e)
}

// run executes fn under the locks named by plan inside one transaction.
// Attempts that fail with domain.ErrConcurrentModification are retried from
// scratch, including lock planning.
func (e *executor) run(ctx context.Context, op string, plan lockPlan, fn func(ctx context.Context, uow *unitOfWork) error) error {
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	var (
		attempts int
		events   []domain.Event
	)
	operation := func() error {
		attempts++
		var err error
		events, err = e.attempt(ctx, plan, fn)
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		e.logger.Debug("Unit of work conflicted, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryBackoff
	b.MaxElapsedTime = 0
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, e.maxRetries), ctx))

	span.SetAttributes(attribute.Int("retry.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")

	e.publish(ctx, op, events)
	return nil
}

func (e *executor) attempt(ctx context.Context, plan lockPlan, fn func(ctx context.Context, uow *unitOfWork) error) ([]domain.Event, error) {
	keys, err := plan(ctx, e.store)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.StringSlice("lock.keys", keys))

	if len(keys) > 0 {
		release, err := e.locker.Acquire(ctx, keys...)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	uow := &unitOfWork{locked: keys}
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		uow.Tx = tx
		uow.events = uow.events[:0]
		return fn(ctx, uow)
	})
	if err != nil {
		return nil, err
	}
	return uow.events, nil
}

// publish hands committed events to the publisher. The state change already
// happened, so a publish failure is logged and not returned.
func (e *executor) publish(ctx context.Context, op string, events []domain.Event) {
	if len(events) == 0 || e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, events...); err != nil {
		e.logger.Error("Failed to publish events",
			zap.String("operation", op),
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

// snapshot runs a read-only view under a span.
func (e *executor) snapshot(ctx context.Context, op string, fn func(ctx context.Context, r port.Reader) error) error {
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	if err := e.store.Snapshot(ctx, fn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
