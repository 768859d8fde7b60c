package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/clock"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/observability/metrics"
	providerdomain "github.com/smallbiznis/payway/internal/provider/domain"
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
	"github.com/smallbiznis/payway/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Config    config.Config
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Providers providerdomain.Repository
	Transport domain.Transport `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

type service struct {
	db        *gorm.DB
	cfg       config.Config
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	providers providerdomain.Repository
	transport domain.Transport
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	transport := p.Transport
	if transport == nil {
		transport = NewHTTPTransport(p.Config.Webhooks.Timeout)
	}
	return &service{
		db:        p.DB,
		cfg:       p.Config,
		log:       p.Log.Named("webhook.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		providers: p.Providers,
		transport: transport,
		metrics:   p.Metrics,
	}
}

// PublishTx records an outbox delivery for a committed transition, inside the
// caller's DB transaction. Transactions without a provider, or whose provider
// has no webhook URL, emit nothing.
func (s *service) PublishTx(ctx context.Context, tx *gorm.DB, t *transactiondomain.Transaction, event string) error {
	if t.ProviderID == nil {
		return nil
	}
	provider, err := s.providers.Find(ctx, tx, *t.ProviderID)
	if err != nil {
		if errors.Is(err, providerdomain.ErrProviderNotFound) {
			return nil
		}
		return err
	}
	if provider.WebhookURL == nil || *provider.WebhookURL == "" {
		return nil
	}

	now := s.clock.Now().UTC()
	token := fmt.Sprintf("%s:%s", t.ID, t.Status)
	payload, err := json.Marshal(domain.EventPayload{
		TransactionID:    t.ID.String(),
		Event:            event,
		Status:           string(t.Status),
		NetAmount:        t.NetAmount.String(),
		Currency:         t.DestCurrency,
		Timestamp:        now,
		IdempotencyToken: token,
	})
	if err != nil {
		return err
	}

	return s.repo.Insert(ctx, tx, &domain.WebhookDelivery{
		ID:               s.genID.Generate(),
		TransactionID:    t.ID,
		ProviderID:       *t.ProviderID,
		Event:            event,
		URL:              *provider.WebhookURL,
		Payload:          payload,
		IdempotencyToken: token,
		Status:           domain.StatusPending,
		Attempts:         0,
		NextRetryAt:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

// Sweep attempts every due pending delivery once, under row locks so
// concurrent sweepers never double-send the same row.
func (s *service) Sweep(ctx context.Context, now time.Time) (int, error) {
	attempted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		due, err := s.repo.ClaimDue(ctx, tx, now, 100)
		if err != nil {
			return err
		}
		for i := range due {
			if err := s.attempt(ctx, tx, &due[i], now); err != nil {
				return err
			}
			attempted++
		}
		return nil
	})
	return attempted, err
}

func (s *service) attempt(ctx context.Context, tx *gorm.DB, d *domain.WebhookDelivery, now time.Time) error {
	attempts := d.Attempts + 1

	statusCode, postErr := s.post(ctx, d)
	if postErr == nil && statusCode >= 200 && statusCode < 300 {
		delivered := now
		s.metrics.RecordWebhookDelivery(ctx, "delivered")
		return s.repo.RecordOutcome(ctx, tx, d.ID, attempts, domain.Outcome{
			StatusCode:  &statusCode,
			DeliveredAt: &delivered,
		})
	}

	outcome := domain.Outcome{}
	if postErr != nil {
		outcome.Err = postErr.Error()
	} else {
		outcome.StatusCode = &statusCode
		outcome.Err = fmt.Sprintf("unexpected status %d", statusCode)
	}

	if attempts >= s.cfg.Webhooks.MaxAttempts {
		outcome.Exhausted = true
		s.metrics.RecordWebhookDelivery(ctx, "exhausted")
		s.log.Error("webhook delivery exhausted",
			zap.String("delivery_id", d.ID.String()),
			zap.String("transaction_id", d.TransactionID.String()),
			zap.String("event", d.Event),
			zap.Int("attempts", attempts),
			zap.String("last_error", outcome.Err),
		)
	} else {
		outcome.NextRetryAt = now.Add(s.backoff(attempts))
		s.metrics.RecordWebhookDelivery(ctx, "retry")
		s.log.Warn("webhook delivery failed, will retry",
			zap.String("delivery_id", d.ID.String()),
			zap.Int("attempts", attempts),
			zap.Time("next_retry_at", outcome.NextRetryAt),
			zap.String("last_error", outcome.Err),
		)
	}
	return s.repo.RecordOutcome(ctx, tx, d.ID, attempts, outcome)
}

func (s *service) post(ctx context.Context, d *domain.WebhookDelivery) (int, error) {
	provider, err := s.providers.Find(ctx, s.db, d.ProviderID)
	if err != nil {
		return 0, err
	}

	mac := hmac.New(sha256.New, []byte(provider.APISecret))
	mac.Write(d.Payload)
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	headers := map[string]string{
		"Content-Type":               "application/json",
		"X-Payway-Signature":         signature,
		"X-Payway-Event":             d.Event,
		"X-Payway-Idempotency-Token": d.IdempotencyToken,
	}
	return s.transport.Post(ctx, d.URL, d.Payload, headers)
}

// backoff grows exponentially from the configured base with up to 50% jitter,
// capped. Jitter never makes the schedule non-monotonic: the minimum of step
// n+1 is at least the maximum of step n.
func (s *service) backoff(attempt int) time.Duration {
	base := s.cfg.Webhooks.BackoffBase
	maxDelay := s.cfg.Webhooks.BackoffCap

	step := base
	for i := 1; i < attempt; i++ {
		step *= 2
		if step >= maxDelay {
			return maxDelay
		}
	}

	jitter := time.Duration(rand.Int63n(int64(step)/2 + 1))
	if step+jitter > maxDelay {
		return maxDelay
	}
	return step + jitter
}

// HTTPTransport is the production Transport.
type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte, headers map[string]string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

var _ domain.Transport = (*HTTPTransport)(nil)
