package scheduler

import (
	"context"
	"log"
	"time"
)

// Expirer is implemented by the payment reconciler.
type Expirer interface {
	ExpireStale(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

type StaleSweepConfig struct {
	TTL       time.Duration // PENDING older than this become FAILED/expired
	Interval  time.Duration
	BatchSize int
}

// StartStalePaymentSweeper runs SweepOnce every Interval until ctx is done.
// The returned channel is closed when the loop exits.
func StartStalePaymentSweeper(ctx context.Context, exp Expirer, cfg StaleSweepConfig) <-chan struct{} {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(cfg.Interval)
		defer t.Stop()
		for {
			SweepOnce(ctx, exp, cfg)
			select {
			case <-ctx.Done():
				log.Println("[CLEANUP] stale payment sweeper stopped")
				return
			case <-t.C:
			}
		}
	}()
	return done
}

// SweepOnce expires batches until a short batch says nothing is left.
func SweepOnce(ctx context.Context, exp Expirer, cfg StaleSweepConfig) int {
	total := 0
	for ctx.Err() == nil {
		n, err := exp.ExpireStale(ctx, cfg.TTL, cfg.BatchSize)
		total += n
		if err != nil {
			log.Printf("[CLEANUP ERROR] expire stale payments: %v", err)
			break
		}
		if n < cfg.BatchSize {
			break
		}
	}
	if total > 0 {
		log.Printf("[CLEANUP] %d stale PENDING payments expired", total)
	}
	return total
}
