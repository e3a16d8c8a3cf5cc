// Package memstore is an in-memory reference implementation of store.Store,
// used by the ledger core's unit tests in place of a real cluster. It
// mirrors the role wtmock plays for watchtower's client/server database
// interfaces: a single-process stand-in with the same CAS semantics as the
// production adapter, so tests exercise real retry and conflict paths
// without a network dependency.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/walletbase/ledgercore/ledgererr"
	"github.com/walletbase/ledgercore/store"
)

// Store is a concurrency-safe, single-process key-value store with the same
// conditional-write semantics the production cluster offers.
type Store struct {
	mu     sync.Mutex
	tables map[string]map[string]store.Row

	// pkFields tells memstore which row fields, in order, form the
	// table's primary key. Tables not registered here default to a
	// single "id" column, which is wrong for composite-keyed tables —
	// callers must register every table they use via Register.
	pkFields map[string][]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tables:   make(map[string]map[string]store.Row),
		pkFields: make(map[string][]string),
	}
}

// Register declares the primary-key column order for table. Must be called
// before the table is used.
func (s *Store) Register(table string, pkFields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkFields[table] = pkFields
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = make(map[string]store.Row)
	}
}

func (s *Store) pkOf(table string, row store.Row) string {
	fields := s.pkFields[table]
	if len(fields) == 0 {
		fields = []string{"id"}
	}
	key := ""
	for _, f := range fields {
		key += toKeyPart(row[f])
	}
	return key
}

type bytesLike interface{ Bytes() []byte }

func toKeyPart(v interface{}) string {
	if b, ok := v.(bytesLike); ok {
		return string(b.Bytes())
	}
	if s, ok := v.(string); ok {
		return s + "\x00"
	}
	return ""
}

// InsertIfAbsent implements store.Store.
func (s *Store) InsertIfAbsent(_ context.Context, table string, row store.Row) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.tables[table]
	if tbl == nil {
		tbl = make(map[string]store.Row)
		s.tables[table] = tbl
	}

	key := s.pkOf(table, row)
	if _, exists := tbl[key]; exists {
		return false, nil
	}
	tbl[key] = row.Clone()
	return true, nil
}

// UpdateIf implements store.Store.
func (s *Store) UpdateIf(_ context.Context, table string, key store.Row, set store.Row, pred store.Predicate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.tables[table]
	if tbl == nil {
		return false, nil
	}
	pk := s.pkOf(table, key)
	row, exists := tbl[pk]
	if !exists {
		return false, nil
	}

	if !valuesEqual(row[pred.Column], pred.Equals) {
		return false, nil
	}

	updated := row.Clone()
	for k, v := range set {
		updated[k] = v
	}
	tbl[pk] = updated
	return true, nil
}

// DeleteIf implements store.Store.
func (s *Store) DeleteIf(_ context.Context, table string, key store.Row, pred store.Predicate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.tables[table]
	if tbl == nil {
		return false, nil
	}
	pk := s.pkOf(table, key)
	row, exists := tbl[pk]
	if !exists {
		return false, nil
	}
	if !valuesEqual(row[pred.Column], pred.Equals) {
		return false, nil
	}
	delete(tbl, pk)
	return true, nil
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, table string, key store.Row, fields []string) (store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.tables[table]
	if tbl == nil {
		return nil, ledgererr.New(ledgererr.NotFound, "table %s: row not found", table)
	}
	row, exists := tbl[s.pkOf(table, key)]
	if !exists {
		return nil, ledgererr.New(ledgererr.NotFound, "table %s: row not found", table)
	}

	if fields == nil {
		return row.Clone(), nil
	}
	out := make(store.Row, len(fields))
	for _, f := range fields {
		out[f] = row[f]
	}
	return out, nil
}

// Range implements store.Store. It is a linear scan suitable only for the
// small in-memory fixtures unit tests build; production traffic goes
// through etcdstore, whose range is a prefix read of the partition's keys.
func (s *Store) Range(_ context.Context, table string, partition store.Row, sortColumn string,
	startExclusive interface{}, limit int, secondary func(store.Row) bool) ([]store.Row, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.tables[table]
	var rows []store.Row
	for _, row := range tbl {
		if !matchesPartition(row, partition) {
			continue
		}
		if startExclusive != nil && !lessThan(row[sortColumn], startExclusive) {
			continue
		}
		if secondary != nil && !secondary(row) {
			continue
		}
		rows = append(rows, row.Clone())
	}

	sort.Slice(rows, func(i, j int) bool {
		return lessThan(rows[j][sortColumn], rows[i][sortColumn])
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func matchesPartition(row, partition store.Row) bool {
	for k, v := range partition {
		if !valuesEqual(row[k], v) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	if ab, ok := a.(bytesLike); ok {
		if bb, ok := b.(bytesLike); ok {
			return string(ab.Bytes()) == string(bb.Bytes())
		}
	}
	return a == b
}

func lessThan(a, b interface{}) bool {
	as, aok := toOrderedString(a)
	bs, bok := toOrderedString(b)
	if aok && bok {
		return as < bs
	}
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		return ai < bi
	}
	return false
}

func toOrderedString(v interface{}) (string, bool) {
	if bl, ok := v.(bytesLike); ok {
		return string(bl.Bytes()), true
	}
	return "", false
}
