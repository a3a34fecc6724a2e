package debrid

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/amaumene/gocomet/internal/database"
)

// Cleaner periodically deletes magnets the resolution pipeline added to
// debrid accounts, once they are older than the retention period.
type Cleaner struct {
	db        database.Database
	providers map[string]Provider
	interval  time.Duration
	retention time.Duration
}

// NewCleaner creates a cleanup job over the given providers.
func NewCleaner(db database.Database, providers []Provider, interval, retention time.Duration) *Cleaner {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Cleaner{db: db, providers: byName, interval: interval, retention: retention}
}

// Start runs the cleanup loop until ctx is cancelled.
func (c *Cleaner) Start(ctx context.Context) {
	log.Info().Dur("interval", c.interval).Dur("retention", c.retention).
		Msg("starting magnet cleanup job")
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.runOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Cleaner) runOnce(ctx context.Context) {
	magnets, err := c.db.GetOldMagnets(c.retention)
	if err != nil {
		log.Error().Err(err).Msg("failed to list old magnets")
		return
	}

	for _, magnet := range magnets {
		provider, ok := c.providers[magnet.Provider]
		if !ok {
			// Provider no longer configured; drop the record.
			_ = c.db.DeleteMagnet(magnet.ID)
			continue
		}
		deleter, ok := provider.(MagnetDeleter)
		if !ok {
			continue
		}

		if err := deleter.DeleteMagnet(ctx, magnet.ProviderMagnetID); err != nil {
			log.Warn().Str("provider", magnet.Provider).Str("hash", magnet.InfoHash).
				Err(err).Msg("failed to delete magnet from provider")
			continue
		}
		if err := c.db.DeleteMagnet(magnet.ID); err != nil {
			log.Warn().Str("id", magnet.ID).Err(err).Msg("failed to delete magnet record")
			continue
		}
		log.Debug().Str("provider", magnet.Provider).Str("hash", magnet.InfoHash).
			Msg("deleted old magnet")
	}
}
