package ingest

import (
	"context"
	"log"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// Watchdog reconciles documents left in "processing" by a crashed or killed
// process. Runs either complete, fail, or die with the process; this is the
// only path that recovers the third case.
type Watchdog struct {
	db       core.DbClient
	interval time.Duration
	staleAge time.Duration
}

func NewWatchdog(db core.DbClient, interval, staleAge time.Duration) *Watchdog {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAge <= 0 {
		staleAge = 15 * time.Minute
	}
	return &Watchdog{db: db, interval: interval, staleAge: staleAge}
}

// Start runs the reconciler until ctx is cancelled.
func (w *Watchdog) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(w.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := w.db.FailStaleProcessing(ctx, w.staleAge)
				if err != nil {
					log.Printf("watchdog: stale sweep failed: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("watchdog: failed %d document(s) stuck in processing over %s", n, w.staleAge)
				}
			}
		}
	}()
}
