// Package retention evicts catalog documents that have outlived the
// configured retention window. Eviction is purely time-based and independent
// of similarity or source.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopscout-tw/shopscout/engine/catalog"
)

// DefaultMaxAge is the standard retention window.
const DefaultMaxAge = 14 * 24 * time.Hour

// Deleter is the slice of the catalog store the sweeper needs.
type Deleter interface {
	DeleteWhere(ctx context.Context, pred catalog.Predicate) (int64, error)
}

// Sweeper deletes documents older than a maximum age.
type Sweeper struct {
	store Deleter
	now   func() time.Time
	log   *slog.Logger
}

// New creates a Sweeper.
func New(store Deleter, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: store, now: time.Now, log: log}
}

// Sweep deletes every document whose timestamp is older than now-maxAge and
// returns the number removed. Repeated calls with nothing newly expired are
// no-ops.
func (s *Sweeper) Sweep(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)
	deleted, err := s.store.DeleteWhere(ctx, catalog.Predicate{OlderThan: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("retention: sweep: %w", err)
	}
	if deleted > 0 {
		s.log.Info("retention: swept outdated documents", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}
