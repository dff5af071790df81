// Package syncer propagates canonical records to the downstream consumer
// webhook. Records are pushed in sync-state order and marked synced or
// failed individually, so one bad record never blocks the queue.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/materia-group/blueline/internal/config"
	"github.com/materia-group/blueline/internal/model"
	"github.com/materia-group/blueline/internal/resilience"
	"github.com/materia-group/blueline/internal/store"
)

// Result summarizes one Run over the pending queue.
type Result struct {
	Pushed int
	Failed int
}

// Syncer drains pending canonical records to the configured webhook.
type Syncer struct {
	store   store.Store
	client  *http.Client
	limiter *rate.Limiter
	cfg     config.SyncConfig
	retry   resilience.RetryConfig
}

// New creates a Syncer from the sync configuration.
func New(st store.Store, cfg config.SyncConfig) *Syncer {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	retry.OnRetry = resilience.RetryLogger("sync push")

	return &Syncer{
		store:   st,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		cfg:     cfg,
		retry:   retry,
	}
}

// Run pushes up to limit pending records and updates each record's sync
// state from the outcome.
func (s *Syncer) Run(ctx context.Context, limit int) (*Result, error) {
	if s.cfg.DisableOutSync {
		zap.L().Info("sync: outbound sync disabled")
		return &Result{}, nil
	}
	if s.cfg.WebhookURL == "" {
		return nil, eris.New("sync: webhook_url not configured")
	}

	records, err := s.store.ListPendingSync(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for i := range records {
		record := &records[i]
		if err := s.limiter.Wait(ctx); err != nil {
			return result, eris.Wrap(err, "sync: rate limiter")
		}

		pushErr := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
			return s.push(ctx, record)
		})

		state := model.SyncSynced
		if pushErr != nil {
			state = model.SyncFailed
			result.Failed++
			zap.L().Error("sync: push failed",
				zap.String("record", record.ID),
				zap.String("material", record.MaterialID),
				zap.Error(pushErr),
			)
		} else {
			result.Pushed++
		}
		if err := s.store.UpdateSyncState(ctx, record.ID, state); err != nil {
			return result, err
		}
	}

	zap.L().Info("sync: run complete",
		zap.Int("pushed", result.Pushed),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Syncer) push(ctx context.Context, record *model.CanonicalRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return eris.Wrap(err, "sync: marshal record")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "sync: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "sync: post record")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err = eris.Errorf("sync: webhook returned %d", resp.StatusCode)
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(err, resp.StatusCode)
	}
	return err
}
