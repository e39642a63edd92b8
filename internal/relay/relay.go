// Package relay consumes queued send jobs, pushes them through the
// messaging client, and folds the provider's answers back into the
// token registry.
package relay

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kursadbilgin/fcm-courier/fcm"
	"github.com/kursadbilgin/fcm-courier/internal/observability"
	"github.com/kursadbilgin/fcm-courier/internal/queue"
	"github.com/kursadbilgin/fcm-courier/internal/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minConcurrency = 1

// Legacy delivery priorities the provider understands. Queue priority
// LOW only orders the broker queue; the provider sees normal.
const (
	deliveryPriorityHigh   = "high"
	deliveryPriorityNormal = "normal"
)

const plainTextErrorPrefix = "Error="

// Sender is the provider-facing slice of the messaging client.
type Sender interface {
	SendData(ctx context.Context, fields *fcm.Fields) (*fcm.Report, error)
	SendPlainText(ctx context.Context, fields *fcm.Fields) ([]byte, error)
}

var _ Sender = (*fcm.Client)(nil)

// Service runs a pool of workers that relay send jobs from the queue
// to the provider.
type Service struct {
	consumer    queue.Consumer
	sender      Sender
	store       registry.Store
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewService(
	consumer queue.Consumer,
	sender Sender,
	store registry.Store,
	concurrency int,
	logger *zap.Logger,
) (*Service, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if store == nil {
		store = registry.NewNopStore()
	}
	if concurrency < minConcurrency {
		concurrency = minConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		consumer:    consumer,
		sender:      sender,
		store:       store,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *Service) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the send queue until context cancellation.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("relay worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.SendQueue),
			)

			err := s.consumer.Consume(groupCtx, queue.SendQueue, s.processJob)
			if err != nil {
				s.logger.Error("relay worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("relay worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (s *Service) processJob(ctx context.Context, job queue.SendJob) error {
	if job.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, job.CorrelationID)
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("jobId", job.ID))

	s.metrics.IncRelayInFlight()
	defer s.metrics.DecRelayInFlight()

	fields := buildFields(job)
	modeLabel := observability.SendModeJSON
	if job.Mode == queue.ModePlainText {
		modeLabel = observability.SendModePlainText
	}

	sendStart := s.now()
	var sendErr error
	switch job.Mode {
	case queue.ModePlainText:
		sendErr = s.relayPlainText(ctx, logger, job, fields)
	default:
		sendErr = s.relayJSON(ctx, logger, fields)
	}
	duration := s.now().Sub(sendStart)

	if sendErr != nil {
		s.metrics.ObserveSend(modeLabel, "error", duration)
		if fcm.IsRetryable(sendErr) {
			logger.Warn("send failed, leaving job for redelivery", zap.Error(sendErr))
			return fmt.Errorf("relay job %s: %w", job.ID, sendErr)
		}

		logger.Error("send failed terminally", zap.Error(sendErr))
		return queue.Terminal(fmt.Errorf("relay job %s: %w", job.ID, sendErr))
	}

	s.metrics.ObserveSend(modeLabel, "ok", duration)
	return nil
}

func (s *Service) relayJSON(ctx context.Context, logger *zap.Logger, fields *fcm.Fields) error {
	report, err := s.sender.SendData(ctx, fields)
	if err != nil {
		return err
	}

	for _, reason := range report.Errors.Reasons() {
		failed := report.Errors.IDs(reason)
		for range failed {
			s.metrics.IncSendFailure(reason)
		}
		logger.Warn("recipients failed",
			zap.String("reason", reason),
			zap.Int("count", len(failed)),
		)
	}

	s.applyReport(ctx, logger, report)

	logger.Debug("job relayed",
		zap.Int("recipients", len(fields.Recipients())),
		zap.Int("delivered", len(report.Success)),
		zap.Int("failureReasons", report.Errors.Len()),
	)
	return nil
}

// applyReport updates the registry. The send already happened, so a
// registry failure must not fail the job and trigger a duplicate send.
func (s *Service) applyReport(ctx context.Context, logger *zap.Logger, report *fcm.Report) {
	applied, err := registry.Apply(ctx, s.store, report)
	if err != nil {
		logger.Error("registry update failed", zap.Error(err))
	}

	s.metrics.AddRegistryUpdates(observability.RegistryActionReplace, applied.Replaced)
	s.metrics.AddRegistryUpdates(observability.RegistryActionRemove, applied.Removed)
	s.metrics.AddRegistryUpdates(observability.RegistryActionDelivered, applied.Delivered)
}

func (s *Service) relayPlainText(ctx context.Context, logger *zap.Logger, job queue.SendJob, fields *fcm.Fields) error {
	body, err := s.sender.SendPlainText(ctx, fields)
	if err != nil {
		return err
	}

	line := strings.TrimSpace(string(body))
	if !strings.HasPrefix(line, plainTextErrorPrefix) {
		if messageID := plainTextMessageID(line); messageID != "" {
			if err := s.store.MarkDelivered(ctx, job.To, messageID); err != nil {
				logger.Error("registry update failed", zap.Error(err))
			} else {
				s.metrics.AddRegistryUpdates(observability.RegistryActionDelivered, 1)
			}
		}
		return nil
	}

	reason := strings.TrimSpace(strings.TrimPrefix(line, plainTextErrorPrefix))
	s.metrics.IncSendFailure(reason)
	logger.Warn("recipients failed",
		zap.String("reason", reason),
		zap.Int("count", 1),
	)

	if registry.Unrecoverable(reason) {
		if err := s.store.Remove(ctx, job.To); err != nil {
			logger.Error("registry update failed", zap.Error(err))
		} else {
			s.metrics.AddRegistryUpdates(observability.RegistryActionRemove, 1)
		}
	}
	return nil
}

// plainTextMessageID extracts the message id from a plain-text success
// body of the form id=<message id>.
func plainTextMessageID(line string) string {
	value, ok := strings.CutPrefix(line, "id=")
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// buildFields translates a queued job into a send payload. Map-backed
// job fields are inserted in sorted key order so the serialized body
// is deterministic.
func buildFields(job queue.SendJob) *fcm.Fields {
	fields := fcm.NewFields()

	if job.To != "" {
		fields.SetTo(job.To)
	}
	if len(job.RegistrationIDs) > 0 {
		fields.SetRegistrationIDs(job.RegistrationIDs...)
	}

	if job.Priority == queue.PriorityHigh {
		fields.SetPriority(deliveryPriorityHigh)
	} else {
		fields.SetPriority(deliveryPriorityNormal)
	}

	if job.CollapseKey != "" {
		fields.SetCollapseKey(job.CollapseKey)
	}
	if job.TimeToLiveSeconds != nil {
		fields.SetTimeToLive(*job.TimeToLiveSeconds)
	}
	if job.DryRun {
		fields.SetDryRun(true)
	}

	if len(job.Data) > 0 {
		fields.SetData(sortedFields(job.Data))
	}
	if len(job.Notification) > 0 {
		fields.SetNotification(sortedFields(job.Notification))
	}

	return fields
}

func sortedFields(entries map[string]string) *fcm.Fields {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := fcm.NewFields()
	for _, key := range keys {
		fields.SetString(key, entries[key])
	}
	return fields
}
