// Package thread correlates related events into a single chat thread.
//
// A ThreadKey derived from the event maps to the chat backend's identifier for
// the first message of a thread. The mapping lives in an external store with a
// time-to-live; the store is the only source of truth and nothing is cached in
// process. Correlation is best-effort: store failures degrade to starting a new
// thread and never block delivery.
package thread

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTTL is how long a thread keeps collecting replies.
const DefaultTTL = 900 * time.Second

// Store is the external key-value store holding ThreadKey -> ThreadHandle.
type Store interface {
	// Get returns the handle for key. found is false when the key is absent or expired.
	Get(ctx context.Context, key string) (handle string, found bool, err error)
	// Put stores handle under key, expiring after ttl.
	Put(ctx context.Context, key, handle string, ttl time.Duration) error
}

// Status describes the outcome of a lookup.
type Status int

const (
	StatusNotFound Status = iota
	StatusFound
	// StatusStoreUnavailable means the store failed; callers treat it as not found.
	StatusStoreUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusStoreUnavailable:
		return "store_unavailable"
	default:
		return "not_found"
	}
}

// LookupResult is the outcome of Correlator.Lookup.
type LookupResult struct {
	Status Status
	Handle string
	Err    error
}

// Found reports whether an existing thread should be joined.
func (r LookupResult) Found() bool {
	return r.Status == StatusFound && r.Handle != ""
}

// Correlator looks up and records thread handles.
type Correlator struct {
	store Store
	ttl   time.Duration
}

// NewCorrelator creates a correlator over store. A non-positive ttl uses DefaultTTL.
func NewCorrelator(store Store, ttl time.Duration) *Correlator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if store == nil {
		store = NopStore{}
	}
	return &Correlator{store: store, ttl: ttl}
}

// TTL returns the expiry applied to persisted threads.
func (c *Correlator) TTL() time.Duration {
	return c.ttl
}

// Lookup performs a single point read. Store errors are logged and reported
// as StatusStoreUnavailable rather than returned.
func (c *Correlator) Lookup(ctx context.Context, key string) LookupResult {
	handle, found, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("Thread lookup failed, starting a new thread",
			"thread_key", key,
			"error", err,
		)
		return LookupResult{Status: StatusStoreUnavailable, Err: err}
	}
	if !found || handle == "" {
		return LookupResult{Status: StatusNotFound}
	}
	return LookupResult{Status: StatusFound, Handle: handle}
}

// Persist records handle as the thread for key. A failure is logged and
// returned for accounting only; the notification has already been delivered.
func (c *Correlator) Persist(ctx context.Context, key, handle string) error {
	if err := c.store.Put(ctx, key, handle, c.ttl); err != nil {
		slog.Warn("Failed to persist thread handle",
			"thread_key", key,
			"thread_handle", handle,
			"error", err,
		)
		return err
	}
	slog.Debug("Persisted thread handle",
		"thread_key", key,
		"thread_handle", handle,
		"ttl", c.ttl,
	)
	return nil
}

// NopStore never finds a thread and discards writes. It is used when thread
// storage is disabled, so every matching event starts a new thread.
type NopStore struct{}

func (NopStore) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (NopStore) Put(context.Context, string, string, time.Duration) error { return nil }
