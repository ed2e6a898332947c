package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config controls the embedded snapshot database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps all data in RAM, used by tests and localdev.
	InMemory bool
	// SyncWrites makes every write durable before returning.
	SyncWrites bool
	// GCInterval is how often value-log garbage collection runs.
	// Zero disables it.
	GCInterval time.Duration
	// GCDiscardRatio is the garbage fraction that triggers a rewrite.
	GCDiscardRatio float64
	// Logger receives database and GC events. Nil silences them.
	Logger *slog.Logger
}

// badgerStore implements Store on an embedded badger database. Snapshots are
// written under a span-ordered primary key plus version and serving index
// keys, so every control lookup is a single reverse scan.
type badgerStore struct {
	db     *badger.DB
	logger *slog.Logger

	stopGC   chan struct{}
	gcDone   chan struct{}
	stopOnce sync.Once
}

// New opens the snapshot store described by cfg.
func New(cfg Config) (Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: path required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}

	s := &badgerStore{
		db:     db,
		logger: cfg.Logger,
		stopGC: make(chan struct{}),
		gcDone: make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.5
		}
		go s.runGC(cfg.GCInterval, ratio)
	} else {
		close(s.gcDone)
	}
	return s, nil
}

func (s *badgerStore) Put(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(spanKey(snap.Dataset, snap.Span), payload); err != nil {
			return err
		}
		if err := txn.Set(versionKey(snap.Dataset, snap.Version, snap.Span), payload); err != nil {
			return err
		}
		if strings.EqualFold(snap.Environment, EnvironmentServing) {
			return txn.Set(servingKey(snap.Dataset, snap.Span), payload)
		}
		return nil
	})
}

func (s *badgerStore) Latest(ctx context.Context, dataset string) (Snapshot, error) {
	return s.lastUnderPrefix(ctx, spanPrefix(dataset))
}

func (s *badgerStore) BySpan(ctx context.Context, dataset string, span int64) (Snapshot, error) {
	var snap Snapshot
	if err := ctx.Err(); err != nil {
		return snap, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(spanKey(dataset, span))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return decodeItem(item, &snap)
	})
	return snap, err
}

func (s *badgerStore) PreviousSpan(ctx context.Context, dataset string, beforeSpan int64) (Snapshot, error) {
	return s.lastBefore(ctx, spanPrefix(dataset), spanKey(dataset, beforeSpan))
}

func (s *badgerStore) PreviousVersion(ctx context.Context, dataset string, beforeVersion int64) (Snapshot, error) {
	// Version index keys end in "/<span>", which sorts above the bare
	// version prefix, so seeking at the bare prefix lands on the latest
	// span of the greatest strictly-lower version.
	seek := []byte(versionPrefix(dataset) + encodeOrdinal(beforeVersion))
	return s.lastBefore(ctx, versionPrefix(dataset), seek)
}

func (s *badgerStore) Serving(ctx context.Context, dataset string) (Snapshot, error) {
	return s.lastUnderPrefix(ctx, servingPrefix(dataset))
}

func (s *badgerStore) List(ctx context.Context, dataset string, limit int) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	prefix := []byte(spanPrefix(dataset))
	out := make([]Snapshot, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekLast(prefix)); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var snap Snapshot
			if err := decodeItem(it.Item(), &snap); err != nil {
				return err
			}
			out = append(out, snap)
		}
		return nil
	})
	return out, err
}

func (s *badgerStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopGC)
	})
	<-s.gcDone
	return s.db.Close()
}

// lastUnderPrefix returns the snapshot at the greatest key under prefix.
func (s *badgerStore) lastUnderPrefix(ctx context.Context, prefix string) (Snapshot, error) {
	return s.lastBefore(ctx, prefix, seekLast([]byte(prefix)))
}

// lastBefore reverse-scans from seek and returns the first snapshot whose key
// is below seek and still under prefix.
func (s *badgerStore) lastBefore(ctx context.Context, prefix string, seek []byte) (Snapshot, error) {
	var snap Snapshot
	if err := ctx.Err(); err != nil {
		return snap, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seek)
		for it.Valid() && string(it.Item().Key()) == string(seek) {
			it.Next()
		}
		if !it.ValidForPrefix([]byte(prefix)) {
			return ErrNotFound
		}
		return decodeItem(it.Item(), &snap)
	})
	return snap, err
}

func (s *badgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
				s.logger.Warn("snapshot store gc failed", slog.String("error", err.Error()))
			}
		}
	}
}

func validateSnapshot(snap Snapshot) error {
	if snap.Dataset == "" {
		return errors.New("store: dataset name required")
	}
	if strings.Contains(snap.Dataset, "/") {
		return fmt.Errorf("store: dataset name %q must not contain '/'", snap.Dataset)
	}
	if snap.Span < 0 {
		return fmt.Errorf("store: span %d must be non-negative", snap.Span)
	}
	if snap.Version < 0 {
		return fmt.Errorf("store: version %d must be non-negative", snap.Version)
	}
	return nil
}

func decodeItem(item *badger.Item, snap *Snapshot) error {
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, snap)
	})
}

// encodeOrdinal renders a non-negative ordinal so lexicographic key order
// matches numeric order.
func encodeOrdinal(v int64) string {
	return fmt.Sprintf("%016x", uint64(v))
}

// seekLast returns a key sorting after every key under prefix.
func seekLast(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xff)
}

func spanPrefix(dataset string) string {
	return "snap/" + dataset + "/span/"
}

func spanKey(dataset string, span int64) []byte {
	return []byte(spanPrefix(dataset) + encodeOrdinal(span))
}

func versionPrefix(dataset string) string {
	return "snap/" + dataset + "/version/"
}

func versionKey(dataset string, version, span int64) []byte {
	return []byte(versionPrefix(dataset) + encodeOrdinal(version) + "/" + encodeOrdinal(span))
}

func servingPrefix(dataset string) string {
	return "snap/" + dataset + "/env/serving/"
}

func servingKey(dataset string, span int64) []byte {
	return []byte(servingPrefix(dataset) + encodeOrdinal(span))
}

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(fmt.Sprintf(format, args...))
}
