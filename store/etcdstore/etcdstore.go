// Package etcdstore is the production store.Store adapter, backed by an
// etcd cluster through go.etcd.io/etcd/client/v3. It is the canonical
// upstream counterpart of the teacher's own vendored etcd fork: same Txn/
// Compare/Op primitives, used here the way channeldb's kvdb backends use a
// transactional KV store underneath a narrow domain-facing interface.
//
// Every row is stored as a single delimited value, tagged per column so
// decoding reconstructs the exact Go types the domain packages' fromRow
// functions expect (id.ID, checksum.Tag, int64, int8, string, []byte) —
// the same contract memstore's in-memory rows already satisfy. CAS is a
// read-modify-write guarded by the key's etcd mod revision: the predicate
// column is checked against the freshly read value before the transaction
// is attempted, and the transaction's own Compare clause catches anything
// that changed between that read and the write.
package etcdstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/walletbase/ledgercore/checksum"
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/ledgererr"
	"github.com/walletbase/ledgercore/store"
)

const keySep = "\x00"

// Store is a store.Store backed by an etcd cluster.
type Store struct {
	cli      *clientv3.Client
	prefix   string
	pkFields map[string][]string
}

// New returns a Store issuing requests through cli, namespacing every key
// under prefix (so one cluster can host more than one ledger deployment).
func New(cli *clientv3.Client, prefix string) *Store {
	return &Store{
		cli:      cli,
		prefix:   prefix,
		pkFields: make(map[string][]string),
	}
}

// Register declares the primary-key column order for table, exactly as
// memstore.Register does, so both backends agree on key layout and unit
// tests against memstore exercise the same partitioning etcdstore will use
// in production.
func (s *Store) Register(table string, pkFields ...string) {
	s.pkFields[table] = pkFields
}

type bytesLike interface{ Bytes() []byte }

func (s *Store) pkPart(v interface{}) string {
	switch t := v.(type) {
	case bytesLike:
		return string(t.Bytes())
	case string:
		return t
	default:
		return ""
	}
}

func (s *Store) rowKey(table string, row store.Row) string {
	fields := s.pkFields[table]
	if len(fields) == 0 {
		fields = []string{"id"}
	}
	parts := make([]string, 0, len(fields)+2)
	parts = append(parts, s.prefix, table)
	for _, f := range fields {
		parts = append(parts, s.pkPart(row[f]))
	}
	return strings.Join(parts, keySep)
}

func (s *Store) partitionPrefix(table string, partition store.Row) string {
	fields := s.pkFields[table]
	if len(fields) == 0 {
		fields = []string{"id"}
	}
	parts := []string{s.prefix, table}
	for _, f := range fields {
		v, ok := partition[f]
		if !ok {
			break
		}
		parts = append(parts, s.pkPart(v))
	}
	return strings.Join(parts, keySep) + keySep
}

// Column type tags, one character each, prefixed to every encoded value so
// decodeRow can reconstruct the original Go type without an external
// schema.
const (
	tagID       = 'i'
	tagChecksum = 'c'
	tagInt64    = 'n'
	tagInt8     = '1'
	tagString   = 's'
	tagBytes    = 'b'
)

func encodeValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case id.ID:
		return string(tagID) + t.String(), nil
	case checksum.Tag:
		return string(tagChecksum) + base64.StdEncoding.EncodeToString(t.Bytes()), nil
	case int64:
		return fmt.Sprintf("%c%d", tagInt64, t), nil
	case int8:
		return fmt.Sprintf("%c%d", tagInt8, t), nil
	case string:
		return string(tagString) + t, nil
	case []byte:
		return string(tagBytes) + base64.StdEncoding.EncodeToString(t), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("etcdstore: unsupported column type %T", v)
	}
}

func decodeValue(s string) (interface{}, error) {
	if s == "" {
		return nil, nil
	}
	tag, rest := s[0], s[1:]
	switch tag {
	case tagID:
		return id.FromString(rest)
	case tagChecksum:
		b, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, err
		}
		return checksum.FromBytes(b), nil
	case tagInt64:
		var n int64
		_, err := fmt.Sscanf(rest, "%d", &n)
		return n, err
	case tagInt8:
		var n int64
		_, err := fmt.Sscanf(rest, "%d", &n)
		return int8(n), err
	case tagString:
		return rest, nil
	case tagBytes:
		return base64.StdEncoding.DecodeString(rest)
	default:
		return nil, fmt.Errorf("etcdstore: unknown column tag %q", tag)
	}
}

func encodeRow(row store.Row) (string, error) {
	var b strings.Builder
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	for i, k := range cols {
		if i > 0 {
			b.WriteByte('\x01')
		}
		enc, err := encodeValue(row[k])
		if err != nil {
			return "", err
		}
		b.WriteString(k)
		b.WriteByte('\x02')
		b.WriteString(enc)
	}
	return b.String(), nil
}

func decodeRow(data string) (store.Row, error) {
	out := make(store.Row)
	if data == "" {
		return out, nil
	}
	for _, field := range strings.Split(data, "\x01") {
		parts := strings.SplitN(field, "\x02", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("etcdstore: malformed row field %q", field)
		}
		v, err := decodeValue(parts[1])
		if err != nil {
			return nil, err
		}
		out[parts[0]] = v
	}
	return out, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, table string, row store.Row) (bool, error) {
	key := s.rowKey(table, row)
	val, err := encodeRow(row)
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "encode row for %s", table)
	}

	resp, err := s.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, val)).
		Commit()
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "insert into %s", table)
	}
	return resp.Succeeded, nil
}

func (s *Store) Get(ctx context.Context, table string, key store.Row, fields []string) (store.Row, error) {
	k := s.rowKey(table, key)
	resp, err := s.cli.Get(ctx, k)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "get %s", table)
	}
	if len(resp.Kvs) == 0 {
		return nil, ledgererr.New(ledgererr.NotFound, "table %s: row not found", table)
	}
	row, err := decodeRow(string(resp.Kvs[0].Value))
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "decode row from %s", table)
	}
	if fields == nil {
		return row, nil
	}
	out := make(store.Row, len(fields))
	for _, f := range fields {
		out[f] = row[f]
	}
	return out, nil
}

func (s *Store) UpdateIf(ctx context.Context, table string, key store.Row, set store.Row, pred store.Predicate) (bool, error) {
	k := s.rowKey(table, key)
	resp, err := s.cli.Get(ctx, k)
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "get %s", table)
	}
	if len(resp.Kvs) == 0 {
		return false, nil
	}
	kv := resp.Kvs[0]
	current, err := decodeRow(string(kv.Value))
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "decode row from %s", table)
	}
	if !valuesEqual(current[pred.Column], pred.Equals) {
		return false, nil
	}

	merged := current.Clone()
	for col, v := range set {
		merged[col] = v
	}
	val, err := encodeRow(merged)
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "encode row for %s", table)
	}

	txnResp, err := s.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(k), "=", kv.ModRevision)).
		Then(clientv3.OpPut(k, val)).
		Commit()
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "update %s", table)
	}
	return txnResp.Succeeded, nil
}

func (s *Store) DeleteIf(ctx context.Context, table string, key store.Row, pred store.Predicate) (bool, error) {
	k := s.rowKey(table, key)
	resp, err := s.cli.Get(ctx, k)
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "get %s", table)
	}
	if len(resp.Kvs) == 0 {
		return false, nil
	}
	kv := resp.Kvs[0]
	current, err := decodeRow(string(kv.Value))
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "decode row from %s", table)
	}
	if !valuesEqual(current[pred.Column], pred.Equals) {
		return false, nil
	}

	txnResp, err := s.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(k), "=", kv.ModRevision)).
		Then(clientv3.OpDelete(k)).
		Commit()
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "delete from %s", table)
	}
	return txnResp.Succeeded, nil
}

func (s *Store) Range(ctx context.Context, table string, partition store.Row, sortColumn string,
	startExclusive interface{}, limit int, secondary func(store.Row) bool) ([]store.Row, error) {

	prefix := s.partitionPrefix(table, partition)
	resp, err := s.cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "range over %s", table)
	}

	var rows []store.Row
	for _, kv := range resp.Kvs {
		row, err := decodeRow(string(kv.Value))
		if err != nil {
			return nil, ledgererr.Wrap(ledgererr.StoreUnavailable, err, "decode row from %s", table)
		}
		if startExclusive != nil && !lessThan(row[sortColumn], startExclusive) {
			continue
		}
		if secondary != nil && !secondary(row) {
			continue
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return lessThan(rows[j][sortColumn], rows[i][sortColumn])
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
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
	if ab, aok := a.(bytesLike); aok {
		if bb, bok := b.(bytesLike); bok {
			return string(ab.Bytes()) < string(bb.Bytes())
		}
	}
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		return ai < bi
	}
	return false
}

var _ store.Store = (*Store)(nil)
