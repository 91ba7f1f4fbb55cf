// Package worker implements the crawl session execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/frontier"
	"github.com/JakeFAU/websearch/internal/metrics"
)

// Session outcome labels used for metrics and completion events.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

// Runner crawls one session to completion.
type Runner interface {
	Run(ctx context.Context, session crawler.Session) (frontier.Report, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a completion event per session. Empty disables publishing.
	Topic string
}

// CompletionEvent is published once a session run ends.
type CompletionEvent struct {
	SessionID  string `json:"session_id"`
	SeedURL    string `json:"url"`
	Outcome    string `json:"outcome"`
	Crawled    int    `json:"crawled"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
	FinishedAt string `json:"finished_at"`
}

// Worker consumes queue items and runs each session through the Runner.
type Worker struct {
	queue     crawler.Queue
	runner    Runner
	publisher crawler.Publisher
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	queue crawler.Queue,
	runner Runner,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		runner:    runner,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, crawler.ErrQueueClosed) {
				w.logger.Info("queue closed, worker stopping")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued session", zap.String("session_id", item.Session.ID))
		_, _ = w.Process(ctx, item)
	}
}

// Process runs a single queue item, announces its outcome, and returns the
// run's report and error.
func (w *Worker) Process(ctx context.Context, item crawler.QueueItem) (frontier.Report, error) {
	logger := w.logger.With(
		zap.String("session_id", item.Session.ID),
		zap.String("url", item.Session.SeedURL),
	)
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	report, err := w.runner.Run(ctx, item.Session)
	outcome := deriveOutcome(ctx, err)
	metrics.ObserveSession(outcome)
	if err != nil {
		logger.Error("session run failed", zap.String("outcome", outcome), zap.Error(err))
	} else {
		logger.Info("session run finished",
			zap.Int("crawled", report.Crawled),
			zap.Duration("duration", report.Duration),
		)
	}

	// completion must still be announced after cancellation
	pubCtx := context.WithoutCancel(ctx)
	if pubErr := w.publishCompletion(pubCtx, item.Session, report, outcome, err); pubErr != nil {
		logger.Warn("completion publish failed", zap.Error(pubErr))
	}
	return report, err
}

func (w *Worker) publishCompletion(
	ctx context.Context,
	session crawler.Session,
	report frontier.Report,
	outcome string,
	runErr error,
) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	event := CompletionEvent{
		SessionID:  session.ID,
		SeedURL:    session.SeedURL,
		Outcome:    outcome,
		Crawled:    report.Crawled,
		Skipped:    report.Count(frontier.StatusSkipped),
		Failed:     report.Count(frontier.StatusFailed),
		FinishedAt: w.clock.Now().Format(time.RFC3339),
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, event)
	if err != nil {
		return fmt.Errorf("publish completion: %w", err)
	}
	w.logger.Debug("completion published",
		zap.String("session_id", session.ID),
		zap.String("message_id", id),
	)
	return nil
}

func deriveOutcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}
