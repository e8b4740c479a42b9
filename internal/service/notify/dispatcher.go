package notify

import (
	"context"
	"fmt"

	"AstroSense/internal/domain/models"
	"AstroSense/pkg/logger"
	"AstroSense/pkg/queue"
)

const alertMessageType = "alert.notify"

// Dispatcher hands alerts to the redis-backed notification queue so
// delivery (dashboards, pagers) happens outside the prediction path.
type Dispatcher struct {
	q queue.QueueService
}

func NewDispatcher(q queue.QueueService) *Dispatcher {
	return &Dispatcher{q: q}
}

// NotifyAlert enqueues one alert for asynchronous delivery.
func (d *Dispatcher) NotifyAlert(ctx context.Context, a *models.Alert) error {
	if a == nil {
		return fmt.Errorf("alert is nil")
	}
	if err := d.q.PublishMessage(ctx, alertMessageType, a); err != nil {
		return fmt.Errorf("enqueue alert %s: %w", a.ID, err)
	}
	return nil
}

// AlertNotifyJob consumes queued alerts. Delivery here is structured log
// output; operators attach shippers to it.
type AlertNotifyJob struct {
	l *logger.Logger
}

func NewAlertNotifyJob(l *logger.Logger) *AlertNotifyJob {
	return &AlertNotifyJob{l: l}
}

func (j *AlertNotifyJob) Name() string { return "alert-notifier" }

func (j *AlertNotifyJob) Type() string { return alertMessageType }

func (j *AlertNotifyJob) Handle(ctx context.Context, payload interface{}) error {
	a, err := queue.ParsePayload[models.Alert](payload)
	if err != nil {
		return fmt.Errorf("parse alert payload: %w", err)
	}

	j.l.Info("alert notification",
		logger.String("id", a.ID),
		logger.String("kind", string(a.Kind)),
		logger.String("severity", string(a.Severity)),
		logger.String("title", a.Title),
	)
	return nil
}

var _ queue.Job = (*AlertNotifyJob)(nil)
