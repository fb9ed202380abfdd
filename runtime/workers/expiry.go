package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"voynich/contract"
	"voynich/domain/event"
)

// ExpiryWorker periodically erases rooms whose TTL has elapsed: first from
// the store (cascading to the messages they own), then from the registry,
// pushing the terminal expiration signal to every evicted session.
//
// Each cycle is idempotent: a room already swept yields zero rows, a room
// without live participants yields an empty eviction set. One room's failure
// is logged and never aborts the sweep for the others. The worker holds no
// lock while the store scan runs, so eviction of one room never blocks
// activity on another.
type ExpiryWorker struct {
	log      *slog.Logger
	store    contract.RoomStore
	registry contract.IRegistry
	clock    clock.Clock
	interval time.Duration
}

func NewExpiryWorker(log *slog.Logger, store contract.RoomStore, registry contract.IRegistry,
	clk clock.Clock, interval time.Duration) *ExpiryWorker {
	return &ExpiryWorker{log: log, store: store, registry: registry, clock: clk, interval: interval}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep executes one expiry cycle.
func (w *ExpiryWorker) Sweep(ctx context.Context) {
	expired, err := w.store.ListExpiredRooms(w.clock.Now())
	if err != nil {
		w.log.Error("Failed to list expired rooms", "error", err)
		return
	}

	for _, roomID := range expired {
		if err := w.store.DeleteRoom(roomID); err != nil {
			w.log.Error("Failed to delete expired room", "room_id", roomID, "error", err)
			continue
		}

		evicted := w.registry.Evict(roomID)
		for _, session := range evicted {
			if err := session.Sink.Consume(ctx, event.ChatExpired{RoomID: roomID}); err != nil {
				w.log.Debug("Evicted session already unreachable",
					"room_id", roomID, "connection_id", session.ConnectionID)
			}
		}
		w.log.Info("Expired room erased", "room_id", roomID, "evicted_sessions", len(evicted))
	}
}
