package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/tradewind-b2b/tradewind/internal/jobs"
	"github.com/tradewind-b2b/tradewind/internal/quotes"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Enqueuer lets the expiry job hand follow-up work back to the queue.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// QuoteExpiryJob runs the two scheduled quote maintenance tasks: the sweep
// that expires overdue quotes and the warning pass that notifies contacts of
// quotes closing soon.
type QuoteExpiryJob struct {
	service  *quotes.Service
	enqueuer Enqueuer
	logger   *slog.Logger
	from     string
	printer  *message.Printer

	// Metrics may be nil; the default registerer is used as a fallback.
	Metrics *jobmetrics.Metrics
}

func NewQuoteExpiryJob(service *quotes.Service, enqueuer Enqueuer, logger *slog.Logger, from string) *QuoteExpiryJob {
	return &QuoteExpiryJob{
		service:  service,
		enqueuer: enqueuer,
		logger:   logger,
		from:     from,
		printer:  message.NewPrinter(language.AmericanEnglish),
	}
}

// HandleExpireSweep processes TaskQuoteExpireSweep tasks.
func (j *QuoteExpiryJob) HandleExpireSweep(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics().Track("quote_expire_sweep")
	expired, err := j.service.ExpireQuotes(ctx)
	if err != nil {
		return tracker.End(fmt.Errorf("expire sweep: %w", err))
	}
	j.metrics().AddExpired(expired)
	if expired > 0 {
		j.logger.Info("expired overdue quotes", slog.Int("count", expired))
	}
	return tracker.End(nil)
}

// HandleExpiryWarn processes TaskQuoteExpiryWarn tasks.
func (j *QuoteExpiryJob) HandleExpiryWarn(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics().Track("quote_expiry_warn")
	expiring, err := j.service.CheckExpiring(ctx)
	if err != nil {
		return tracker.End(fmt.Errorf("expiry warn: %w", err))
	}
	warned := 0
	for _, q := range expiring {
		if j.enqueuer == nil {
			break
		}
		body := j.printer.Sprintf(
			"Quote %s worth $%.2f is valid until %s. Accept it before it expires.",
			q.Number, q.Pricing.Total, q.Terms.ValidUntil.Format("January 2, 2006"))
		_, err := j.enqueuer.EnqueueSendEmail(ctx, SendEmailPayload{
			To:      q.ContactID,
			From:    j.from,
			Subject: fmt.Sprintf("Your quote %s expires soon", q.Number),
			Body:    body,
		})
		if err != nil {
			j.logger.Warn("enqueue expiry warning",
				slog.String("quote_id", q.ID),
				slog.Any("error", err))
			continue
		}
		warned++
	}
	j.metrics().AddWarned(warned)
	return tracker.End(nil)
}

func (j *QuoteExpiryJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
