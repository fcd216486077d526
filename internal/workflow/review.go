package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/resilience"
	"github.com/sells-group/signal-service/internal/store"
)

// Deliverer pushes a published review to the platform that submitted the
// target.
type Deliverer interface {
	Deliver(ctx context.Context, c model.Case, review model.Review, target *model.Target) error
}

// WebhookDeliverer posts review outcomes to a fixed callback URL.
type WebhookDeliverer struct {
	URL  string
	HTTP *http.Client
}

// Deliver sends one review outcome. The target's client context rides
// along untouched so the platform can correlate the callback.
func (d *WebhookDeliverer) Deliver(ctx context.Context, c model.Case, review model.Review, target *model.Target) error {
	payload := map[string]any{
		"case_id":   c.ID,
		"review_id": review.ID,
		"decision":  review.Decision,
	}
	if target != nil {
		payload["target_id"] = target.ID
		payload["client_context"] = target.ClientContext
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "workflow: marshal delivery")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "workflow: create delivery request")
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.HTTP
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "workflow: deliver review"), 0)
	}
	defer resp.Body.Close()

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(
			eris.Errorf("workflow: delivery status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return eris.Errorf("workflow: delivery status %d", resp.StatusCode)
	}
	return nil
}

// Publisher turns draft reviews into published ones after a grace period
// and drives delivery. The grace period is the moderator's undo window: a
// draft deleted before the delay fires is simply never published.
type Publisher struct {
	store   store.Store
	deliver Deliverer
	delay   time.Duration
	retry   resilience.RetryConfig
	log     *zap.Logger
}

// NewPublisher creates a Publisher. Delay is how long a draft can be
// withdrawn before it is published and delivered.
func NewPublisher(st store.Store, deliver Deliverer, delay time.Duration, retry resilience.RetryConfig) *Publisher {
	return &Publisher{
		store:   st,
		deliver: deliver,
		delay:   delay,
		retry:   retry,
		log:     zap.L(),
	}
}

// Schedule arms the publish of a draft review after the grace period.
// The timer is cancelled with the context.
func (p *Publisher) Schedule(ctx context.Context, caseID, reviewID string) {
	go func() {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := p.Publish(ctx, caseID, reviewID); err != nil {
			p.log.Error("publishing review failed",
				zap.String("case_id", caseID),
				zap.String("review_id", reviewID),
				zap.Error(err))
		}
	}()
}

// Publish moves a draft review to PUBLISHED and attempts delivery.
// Bounded retry with jittered backoff; terminal failure is recorded as
// delivery_status FAILED, never retried again.
func (p *Publisher) Publish(ctx context.Context, caseID, reviewID string) error {
	c, err := p.store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	review := c.ReviewByID(reviewID)
	if review == nil {
		// Deleted during the grace period; nothing to publish.
		p.log.Info("review withdrawn before publish",
			zap.String("case_id", caseID),
			zap.String("review_id", reviewID))
		return nil
	}
	if review.State != model.ReviewStateDraft {
		return nil
	}

	review.State = model.ReviewStatePublished
	review.UpdateTime = time.Now().UTC()
	review.DeliveryStatus = model.DeliveryPending
	c.DeriveState()
	if err := p.store.UpdateCase(ctx, *c); err != nil {
		return err
	}

	status := model.DeliveryAccepted
	if derr := p.attemptDelivery(ctx, c, *review); derr != nil {
		p.log.Error("review delivery failed permanently",
			zap.String("case_id", caseID),
			zap.String("review_id", reviewID),
			zap.Error(derr))
		status = model.DeliveryFailed
	}

	// Re-read before the status write: delivery may have taken a while
	// and the case could have gained reviews meanwhile.
	c, err = p.store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	review = c.ReviewByID(reviewID)
	if review == nil {
		return nil
	}
	review.DeliveryStatus = status
	review.UpdateTime = time.Now().UTC()
	return p.store.UpdateCase(ctx, *c)
}

func (p *Publisher) attemptDelivery(ctx context.Context, c *model.Case, review model.Review) error {
	if p.deliver == nil {
		return nil
	}

	var target *model.Target
	if c.TargetID != "" {
		t, err := p.store.GetTarget(ctx, c.TargetID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		target = t
	}

	cfg := p.retry
	cfg.OnRetry = resilience.LogRetries("delivery", "deliver review")
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return p.deliver.Deliver(ctx, *c, review, target)
	})
}
