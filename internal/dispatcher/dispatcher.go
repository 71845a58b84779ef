package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/endpoint"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/internal/transport"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/pkg/metrics"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_registrar/pkg/retry"
)

// Dispatcher runs endpoint operations: validate, build, execute, parse.
type Dispatcher struct {
	executor endpoint.Executor
	metrics  *metrics.Metrics
	logger   *slog.Logger
	retryCfg retry.Config
}

func New(executor endpoint.Executor, m *metrics.Metrics, logger *slog.Logger, retryCfg retry.Config) *Dispatcher {
	if m == nil {
		m = metrics.New()
	}
	return &Dispatcher{
		executor: executor,
		metrics:  m,
		logger:   logger,
		retryCfg: retryCfg,
	}
}

// Run executes op. Validation errors are returned as is and nothing is sent.
// Transport errors are retried while they look temporary.
func Run[T any](ctx context.Context, d *Dispatcher, op endpoint.Operation[T]) (T, error) {
	var zero T
	log := d.logger.With(
		slog.String("operation", op.Name()),
		slog.String("operation_type", op.OperationType().String()),
	)

	if err := op.Validate(); err != nil {
		d.metrics.IncRejected()
		log.Warn("operation rejected", slog.Any("error", err))
		return zero, err
	}

	req, err := op.BuildRequest()
	if err != nil {
		d.metrics.IncFailed()
		return zero, fmt.Errorf("%s: build request: %w", op.Name(), err)
	}

	d.metrics.IncRequested()
	cfg := d.retryCfg
	cfg.OnRetry = func(attempt int, err error) {
		d.metrics.IncRetried()
		log.Warn("request failed, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
	}

	var resp *endpoint.Response
	err = retry.Do(ctx, cfg, func() error {
		r, err := d.executor.Execute(ctx, req)
		if err != nil {
			if !retryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		d.metrics.IncFailed()
		log.Error("operation failed", slog.Any("error", err))
		return zero, fmt.Errorf("%s: %w", op.Name(), err)
	}

	result, err := op.ParseResponse(resp.Body)
	if err != nil {
		d.metrics.IncFailed()
		return zero, fmt.Errorf("%s: parse response: %w", op.Name(), err)
	}
	log.Debug("operation completed", slog.Int("status", resp.StatusCode))
	return result, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrMalformedResponse) {
		return false
	}
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
