package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/events"
	"identity-reconciliation/internal/metrics"
	"identity-reconciliation/internal/models"
	"identity-reconciliation/internal/repository"
)

// ErrEmptyFragment is returned when a request carries neither an email nor a
// phone number.
var ErrEmptyFragment = errors.New("either email or phoneNumber must be provided")

// ReconciliationService handles identity reconciliation logic
type ReconciliationService struct {
	tx           repository.Transactor
	finder       Finder
	consolidator Consolidator
	clock        func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics
	publisher    events.Publisher
	tracer       trace.Tracer
	retry        database.RetryConfig
	timeout      time.Duration
}

// Option configures a ReconciliationService.
type Option func(*ReconciliationService)

// WithClock sets the clock used to stamp created and updated contacts.
func WithClock(clock func() time.Time) Option {
	return func(s *ReconciliationService) { s.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *ReconciliationService) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ReconciliationService) { s.metrics = m }
}

// WithPublisher sets where committed identity changes are announced.
func WithPublisher(p events.Publisher) Option {
	return func(s *ReconciliationService) { s.publisher = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *ReconciliationService) { s.tracer = t }
}

// WithRetry sets how often a request's transaction is retried after a
// transient store failure.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(s *ReconciliationService) {
		s.retry.MaxAttempts = attempts
		s.retry.Delay = delay
	}
}

// WithTimeout bounds the whole unit of work of one request. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *ReconciliationService) { s.timeout = d }
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(tx repository.Transactor, opts ...Option) *ReconciliationService {
	s := &ReconciliationService{
		tx:        tx,
		logger:    slog.Default(),
		publisher: events.NoopPublisher{},
		tracer:    otel.Tracer("identity-reconciliation/service"),
		retry:     database.RetryConfig{MaxAttempts: 3, Delay: 25 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.consolidator = NewConsolidator(s.clock)
	s.retry.OnRetry = func(attempt int, err error) {
		s.metrics.IncTxRetries()
		s.logger.Warn("retrying identify transaction", "attempt", attempt+1, "error", err)
	}
	return s
}

// Identify reconciles the request's fragment with the stored contacts and
// returns the consolidated identity it belongs to. Discovery and every write
// run in one transaction; events are published only after it commits.
func (s *ReconciliationService) Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error) {
	fragment := req.Fragment()
	if fragment.Empty() {
		s.metrics.ObserveIdentify(metrics.OutcomeInvalid)
		return nil, ErrEmptyFragment
	}

	ctx, span := s.tracer.Start(ctx, "ReconciliationService.Identify",
		trace.WithAttributes(
			attribute.Bool("identify.has_email", fragment.Email != nil),
			attribute.Bool("identify.has_phone", fragment.PhoneNumber != nil),
		))
	defer span.End()

	txCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		component Component
		result    Consolidation
	)
	err := database.WithRetry(txCtx, s.retry, func() error {
		return s.tx.WithinTx(txCtx, func(repo repository.ContactRepository) error {
			var err error
			if component, err = s.finder.Find(txCtx, repo, fragment); err != nil {
				return fmt.Errorf("failed to find linked contacts: %w", err)
			}
			result, err = s.consolidator.Consolidate(txCtx, repo, fragment, component.Contacts)
			return err
		})
	})
	if err != nil {
		s.metrics.ObserveIdentify(metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "identify failed")
		return nil, err
	}

	s.metrics.ObserveComponent(len(component.Contacts), component.Rounds)
	s.metrics.ObserveCanonicalization(len(result.Demoted), len(result.Relinked))
	outcome := metrics.OutcomeLookup
	if result.Created != nil {
		s.metrics.ObserveCreated(string(result.Created.LinkPrecedence))
		outcome = metrics.OutcomeCreatedSecondary
		if result.Created.IsPrimary() {
			outcome = metrics.OutcomeCreatedPrimary
		}
	}
	s.metrics.ObserveIdentify(outcome)

	span.SetAttributes(
		attribute.Int64("identify.primary_id", result.View.PrimaryContactID),
		attribute.Int("identify.component_size", len(component.Contacts)),
		attribute.Int("identify.rounds", component.Rounds),
		attribute.String("identify.outcome", outcome),
	)
	s.logger.DebugContext(ctx, "identify reconciled",
		"primary_id", result.View.PrimaryContactID,
		"component_size", len(component.Contacts),
		"rounds", component.Rounds,
		"outcome", outcome,
		"demoted", len(result.Demoted),
		"relinked", len(result.Relinked),
	)
	if result.Promoted {
		s.logger.WarnContext(ctx, "component had no primary, promoted oldest member", "primary_id", result.Primary.ID)
	}

	s.publish(ctx, result)
	return result.View.Response(), nil
}

// publish announces a committed consolidation. Failures are logged and never
// fail the request.
func (s *ReconciliationService) publish(ctx context.Context, result Consolidation) {
	primaryID := result.View.PrimaryContactID
	occurredAt := time.Now().UTC()

	var evs []events.Event
	if result.Created != nil {
		typ := events.ContactLinked
		if result.Created.IsPrimary() {
			typ = events.ContactCreated
		}
		evs = append(evs, events.Event{Type: typ, PrimaryContactID: primaryID, ContactIDs: []int64{result.Created.ID}, OccurredAt: occurredAt})
	}
	if len(result.Demoted) > 0 {
		ids := make([]int64, 0, len(result.Demoted))
		for _, c := range result.Demoted {
			ids = append(ids, c.ID)
		}
		evs = append(evs, events.Event{Type: events.ContactsMerged, PrimaryContactID: primaryID, ContactIDs: ids, OccurredAt: occurredAt})
	}

	for _, e := range evs {
		err := s.publisher.Publish(ctx, e)
		s.metrics.ObserveEvent(string(e.Type), err)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to publish identity event", "type", e.Type, "primary_id", primaryID, "error", err)
		}
	}
}
