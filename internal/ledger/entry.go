package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one immutable ledger record together with its digest.
type Entry struct {
	Index     int64
	Timestamp time.Time
	EventType string
	Actor     string
	TenantID  string
	Payload   Object
	PrevHash  string
	Hash      string
	Nonce     int64
}

// entryJSON is the wire shape of an Entry. The timestamp is carried in
// TimestampLayout so exported records rehash byte-for-byte.
type entryJSON struct {
	Index     int64  `json:"index"`
	Timestamp string `json:"timestamp"`
	EventType string `json:"eventType"`
	Actor     string `json:"actor"`
	TenantID  string `json:"tenantId"`
	Payload   Object `json:"payload"`
	PrevHash  string `json:"prevHash"`
	Hash      string `json:"hash"`
	Nonce     int64  `json:"nonce"`
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	payload := e.Payload
	if payload == nil {
		payload = Object{}
	}
	return json.Marshal(entryJSON{
		Index:     e.Index,
		Timestamp: FormatTimestamp(e.Timestamp),
		EventType: e.EventType,
		Actor:     e.Actor,
		TenantID:  e.TenantID,
		Payload:   payload,
		PrevHash:  e.PrevHash,
		Hash:      e.Hash,
		Nonce:     e.Nonce,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return fmt.Errorf("entry %d: timestamp: %w", raw.Index, err)
	}
	if raw.Payload == nil {
		raw.Payload = Object{}
	}
	*e = Entry{
		Index:     raw.Index,
		Timestamp: ts,
		EventType: raw.EventType,
		Actor:     raw.Actor,
		TenantID:  raw.TenantID,
		Payload:   raw.Payload,
		PrevHash:  raw.PrevHash,
		Hash:      raw.Hash,
		Nonce:     raw.Nonce,
	}
	return nil
}

// AppendRequest is the input of the only write path.
type AppendRequest struct {
	EventType string `json:"eventType"`
	Actor     string `json:"actor"`
	TenantID  string `json:"tenantId"`
	Payload   Object `json:"payload"`
}

// AppendResult identifies a newly written entry.
type AppendResult struct {
	Index int64  `json:"index"`
	Hash  string `json:"hash"`
}

// TenantQuery selects a page of one tenant's entries.
type TenantQuery struct {
	TenantID string
	Limit    int
	// Before, when set, restricts results to index < *Before.
	Before *int64
	// Ascending flips the default descending order.
	Ascending bool
}

// ChainStore is durable, append-only, ordered storage for entries.
//
// Implementations enforce uniqueness of Index and of Hash. Insert is a
// compare-and-append: it also fails with ErrConflict when the entry does not
// extend the current tip (PrevHash must equal the tip hash, or GenesisHash
// with Index 0 on an empty store). A successful Insert makes every field of
// the entry visible at once.
//
// There is deliberately no update or delete.
type ChainStore interface {
	// Last returns the entry with the greatest index; ok is false when empty.
	Last(ctx context.Context) (e Entry, ok bool, err error)
	// Insert appends an entry. Returns ErrConflict on a duplicate or a stale tip.
	Insert(ctx context.Context, e Entry) error
	// GetByHash returns ErrNotFound when no entry has the hash.
	GetByHash(ctx context.Context, hash string) (Entry, error)
	// GetByIndex returns ErrNotFound when no entry has the index.
	GetByIndex(ctx context.Context, index int64) (Entry, error)
	// ListRange returns up to limit entries with from <= index <= to, ascending.
	ListRange(ctx context.Context, from, to int64, limit int) ([]Entry, error)
	// ListByTenant returns one page of a tenant's entries.
	ListByTenant(ctx context.Context, q TenantQuery) ([]Entry, error)
	// Close releases the backend.
	Close() error
}

// Clock supplies entry timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
