package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rx3lixir/bijoy/internal/kvstore"
	"github.com/rx3lixir/bijoy/pkg/logger"
)

const (
	archivePrefix = "conversation:"
	writeTimeout  = 5 * time.Second
)

// Archive mirrors every conversation of a Store into a key-value blob store
// and restores them on startup. Writes are coalesced per conversation.
type Archive struct {
	store *Store
	kv    kvstore.Store
	log   *slog.Logger

	mu     sync.Mutex
	dirty  map[string]struct{}
	notify chan struct{}

	unsubscribe func()
}

func NewArchive(store *Store, kv kvstore.Store, log *slog.Logger) *Archive {
	a := &Archive{
		store:  store,
		kv:     kv,
		log:    logger.OrDefault(log),
		dirty:  make(map[string]struct{}),
		notify: make(chan struct{}, 1),
	}
	a.unsubscribe = store.Subscribe(a.onEvent)
	return a
}

func archiveKey(conversationID string) string {
	return archivePrefix + conversationID
}

func (a *Archive) onEvent(ev Event) {
	a.mu.Lock()
	a.dirty[ev.ConversationID] = struct{}{}
	a.mu.Unlock()

	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// Restore loads every archived conversation into the store
func (a *Archive) Restore(ctx context.Context) (int, error) {
	keys, err := a.kv.List(ctx, archivePrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list archived conversations: %w", err)
	}

	restored := 0
	for _, key := range keys {
		raw, err := a.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, kvstore.ErrNotFound) {
				continue
			}
			return restored, fmt.Errorf("failed to read %s: %w", key, err)
		}

		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			a.log.Warn("skipping corrupt conversation archive", "key", key, "error", err)
			continue
		}
		snap.ID = strings.TrimPrefix(key, archivePrefix)

		a.store.Load(snap)
		restored++
	}

	a.log.Info("conversations restored", "count", restored)
	return restored, nil
}

// Flush writes every conversation changed since the last flush
func (a *Archive) Flush(ctx context.Context) error {
	a.mu.Lock()
	ids := make([]string, 0, len(a.dirty))
	for id := range a.dirty {
		ids = append(ids, id)
	}
	a.dirty = make(map[string]struct{})
	a.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := a.write(ctx, id); err != nil {
			errs = append(errs, err)
			a.mu.Lock()
			a.dirty[id] = struct{}{}
			a.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

func (a *Archive) write(ctx context.Context, id string) error {
	snap, ok := a.store.Snapshot(id)
	if !ok {
		return a.kv.Delete(ctx, archiveKey(id))
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", id, err)
	}
	if err := a.kv.Put(ctx, archiveKey(id), raw); err != nil {
		return fmt.Errorf("failed to archive conversation %s: %w", id, err)
	}
	return nil
}

// Run flushes changes as they happen until ctx is cancelled, then performs
// a final flush.
func (a *Archive) Run(ctx context.Context) {
	for {
		select {
		case <-a.notify:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			if err := a.Flush(wctx); err != nil {
				a.log.Error("failed to archive conversations", "error", err)
			}
			cancel()

		case <-ctx.Done():
			wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := a.Flush(wctx); err != nil {
				a.log.Error("final archive flush failed", "error", err)
			}
			cancel()
			return
		}
	}
}

// Close detaches the archive from the store
func (a *Archive) Close() {
	a.unsubscribe()
}
