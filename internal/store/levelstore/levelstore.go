// Package levelstore is a LevelDB-backed chain store.
//
// It suits embedded single-process deployments where SQLite is not wanted.
// The database directory is locked by LevelDB, so only one process may open
// it; within that process Insert is serialized by a mutex.
//
// Key layout (all integers big-endian so that byte order is index order):
//
//	e<idx>                  -> entry JSON
//	h<hash>                 -> idx
//	t<tenant>\x00<idx>      -> empty
//
// Tenant ids never contain control characters, so the \x00 separator keeps
// one tenant's keys from prefixing another's.
package levelstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/roach88/custody/internal/ledger"
)

var (
	entryKeyPrefix  = []byte{'e'}
	hashKeyPrefix   = []byte{'h'}
	tenantKeyPrefix = []byte{'t'}
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("levelstore: closed")

var _ ledger.ChainStore = (*Store)(nil)

// Store is the LevelDB chain store.
type Store struct {
	db      *leveldb.DB
	writeMu sync.Mutex
	closed  uint32
}

// Open opens or creates a LevelDB chain store in dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database lock.
func (s *Store) Close() error {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	return atomic.LoadUint32(&s.closed) == 1
}

// Insert appends e if it extends the current tip.
// The entry, hash index and tenant index keys are written in one batch.
func (s *Store) Insert(ctx context.Context, e ledger.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tip, ok, err := s.last()
	if err != nil {
		return fmt.Errorf("insert entry %d: %w", e.Index, err)
	}
	switch {
	case !ok && (e.Index != 0 || e.PrevHash != ledger.GenesisHash):
		return fmt.Errorf("insert entry %d: chain is empty, expected genesis: %w", e.Index, ledger.ErrConflict)
	case ok && (e.Index != tip.Index+1 || e.PrevHash != tip.Hash):
		return fmt.Errorf("insert entry %d: tip is %d: %w", e.Index, tip.Index, ledger.ErrConflict)
	}

	hashKey := makeKey(hashKeyPrefix, []byte(e.Hash))
	if has, err := s.db.Has(hashKey, nil); err != nil {
		return fmt.Errorf("insert entry %d: access leveldb: %w", e.Index, err)
	} else if has {
		return fmt.Errorf("insert entry %d: %w", e.Index, ledger.ErrConflict)
	}

	if e.Payload == nil {
		e.Payload = ledger.Object{}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("insert entry %d: encode: %w", e.Index, err)
	}

	batch := new(leveldb.Batch)
	batch.Put(entryKey(e.Index), data)
	batch.Put(hashKey, uint64ToBytes(uint64(e.Index)))
	batch.Put(tenantKey(e.TenantID, e.Index), nil)

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("insert entry %d: write batch: %w", e.Index, err)
	}
	return nil
}

// Last returns the entry with the greatest index.
func (s *Store) Last(ctx context.Context) (ledger.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, false, err
	}
	if s.isClosed() {
		return ledger.Entry{}, false, ErrClosed
	}
	return s.last()
}

func (s *Store) last() (ledger.Entry, bool, error) {
	it := s.db.NewIterator(util.BytesPrefix(entryKeyPrefix), nil)
	defer it.Release()

	if !it.Last() {
		if err := it.Error(); err != nil {
			return ledger.Entry{}, false, fmt.Errorf("read tip: %w", err)
		}
		return ledger.Entry{}, false, nil
	}
	e, err := decodeEntry(it.Key(), it.Value())
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

// GetByHash looks the hash up in the hash index, then loads the entry.
func (s *Store) GetByHash(ctx context.Context, hash string) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	if s.isClosed() {
		return ledger.Entry{}, ErrClosed
	}

	raw, err := s.db.Get(makeKey(hashKeyPrefix, []byte(hash)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return ledger.Entry{}, fmt.Errorf("get entry %s: %w", hash, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("get entry %s: %w", hash, err)
	}
	return s.get(int64(bytesToUint64(raw)))
}

// GetByIndex loads the entry at index.
func (s *Store) GetByIndex(ctx context.Context, index int64) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	if s.isClosed() {
		return ledger.Entry{}, ErrClosed
	}
	return s.get(index)
}

func (s *Store) get(index int64) (ledger.Entry, error) {
	if index < 0 {
		return ledger.Entry{}, fmt.Errorf("get entry %d: %w", index, ledger.ErrNotFound)
	}
	key := entryKey(index)
	data, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return ledger.Entry{}, fmt.Errorf("get entry %d: %w", index, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("get entry %d: %w", index, err)
	}
	return decodeEntry(key, data)
}

// ListRange returns up to limit entries with from <= index <= to, ascending.
func (s *Store) ListRange(ctx context.Context, from, to int64, limit int) ([]ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	entries := []ledger.Entry{}
	if to < from || to < 0 {
		return entries, nil
	}
	if from < 0 {
		from = 0
	}

	rng := &util.Range{Start: entryKey(from), Limit: entryKey(to + 1)}
	it := s.db.NewIterator(rng, nil)
	defer it.Release()

	for it.Next() {
		e, err := decodeEntry(it.Key(), it.Value())
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate range: %w", err)
	}
	return entries, nil
}

// ListByTenant walks the tenant index and loads each entry.
func (s *Store) ListByTenant(ctx context.Context, q ledger.TenantQuery) ([]ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	prefix := tenantPrefix(q.TenantID)
	rng := util.BytesPrefix(prefix)
	if q.Before != nil {
		if *q.Before <= 0 {
			return []ledger.Entry{}, nil
		}
		rng.Limit = tenantKey(q.TenantID, *q.Before)
	}

	it := s.db.NewIterator(rng, nil)
	defer it.Release()

	step := it.Prev
	ok := it.Last()
	if q.Ascending {
		step = it.Next
		ok = it.First()
	}

	entries := []ledger.Entry{}
	for ; ok; ok = step() {
		e, err := s.get(tenantKeyIndex(it, len(prefix)))
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		if q.Limit > 0 && len(entries) == q.Limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate tenant %s: %w", q.TenantID, err)
	}
	return entries, nil
}

func tenantKeyIndex(it iterator.Iterator, prefixLen int) int64 {
	return int64(bytesToUint64(it.Key()[prefixLen:]))
}

// decodeEntry parses a stored entry. Bytes that do not decode, or that
// decode to a different index than their key, were not written by Insert.
func decodeEntry(key, data []byte) (ledger.Entry, error) {
	index := int64(bytesToUint64(key[len(entryKeyPrefix):]))

	var e ledger.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return ledger.Entry{}, ledger.NewCorruptionError(index, "stored entry does not decode")
	}
	if e.Index != index {
		return ledger.Entry{}, ledger.NewCorruptionError(index, fmt.Sprintf("stored entry claims index %d", e.Index))
	}
	return e, nil
}

func entryKey(index int64) []byte {
	return makeKey(entryKeyPrefix, uint64ToBytes(uint64(index)))
}

func tenantPrefix(tenantID string) []byte {
	return makeKey(tenantKeyPrefix, []byte(tenantID), []byte{0})
}

func tenantKey(tenantID string, index int64) []byte {
	return makeKey(tenantPrefix(tenantID), uint64ToBytes(uint64(index)))
}

func makeKey(prefix []byte, parts ...[]byte) []byte {
	key := append([]byte(nil), prefix...)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func uint64ToBytes(o uint64) []byte {
	res := make([]byte, 8)
	binary.BigEndian.PutUint64(res, o)
	return res
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
