package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/farmlink/agrosync/internal/errors"
)

// Partition is a named object store: one table keyed by a primary key with a
// secondary index on a timestamp.
type Partition string

const (
	PartitionListings       Partition = "cached_listings"
	PartitionOrders         Partition = "cached_orders"
	PartitionNewListings    Partition = "queue_new_listings"
	PartitionListingEdits   Partition = "queue_listing_edits"
	PartitionListingDeletes Partition = "queue_listing_deletes"
	PartitionOrderUpdates   Partition = "queue_order_updates"
)

var knownPartitions = map[Partition]bool{
	PartitionListings:       true,
	PartitionOrders:         true,
	PartitionNewListings:    true,
	PartitionListingEdits:   true,
	PartitionListingDeletes: true,
	PartitionOrderUpdates:   true,
}

// Partitions returns every partition the schema defines.
func Partitions() []Partition {
	return []Partition{
		PartitionListings, PartitionOrders,
		PartitionNewListings, PartitionListingEdits, PartitionListingDeletes, PartitionOrderUpdates,
	}
}

func (p Partition) check() error {
	if !knownPartitions[p] {
		return errors.New(errors.ErrInvalid, fmt.Sprintf("unknown partition %q", p))
	}
	return nil
}

// Entry is one record to write with ReplaceAll.
type Entry struct {
	Key    string
	SortTS int64
	Record interface{}
}

// Store is the process-wide local store. Records are JSON documents replaced
// wholesale on every write; the single sqlite connection serializes writers,
// so conflicting writes to one key are last-write-wins. Update and DeleteIf
// read and write under one transaction.
type Store struct {
	db *DB
}

// NewStore wraps an opened and migrated database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database for tests and diagnostics.
func (s *Store) DB() *DB {
	return s.db
}

// Put upserts record under key. Overwriting an existing key is not an error.
func (s *Store) Put(ctx context.Context, p Partition, key string, sortTS int64, record interface{}) error {
	if err := p.check(); err != nil {
		return err
	}
	body, err := json.Marshal(record)
	if err != nil {
		return errors.Storage(fmt.Sprintf("encode %s/%s", p, key), err)
	}
	if err := put(ctx, s.db.DB, p, key, sortTS, body); err != nil {
		return errors.Storage(fmt.Sprintf("put %s/%s", p, key), err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func put(ctx context.Context, ex execer, p Partition, key string, sortTS int64, body []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, sort_ts, body) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET sort_ts = excluded.sort_ts, body = excluded.body`, p)
	_, err := ex.ExecContext(ctx, query, key, sortTS, body)
	return err
}

// Delete removes key. Deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, p Partition, key string) error {
	if err := p.check(); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE key = ?", p)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return errors.Storage(fmt.Sprintf("delete %s/%s", p, key), err)
	}
	return nil
}

// Clear removes every record in the partition.
func (s *Store) Clear(ctx context.Context, p Partition) error {
	if err := p.check(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", p)); err != nil {
		return errors.Storage(fmt.Sprintf("clear %s", p), err)
	}
	return nil
}

// Count returns the number of records in the partition.
func (s *Store) Count(ctx context.Context, p Partition) (int, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", p)).Scan(&n); err != nil {
		return 0, errors.Storage(fmt.Sprintf("count %s", p), err)
	}
	return n, nil
}

// ReplaceAll swaps the whole partition content for entries in one
// transaction. Readers see either the old or the new set, never a mix.
func (s *Store) ReplaceAll(ctx context.Context, p Partition, entries []Entry) error {
	if err := p.check(); err != nil {
		return err
	}

	bodies := make([][]byte, len(entries))
	for i, e := range entries {
		body, err := json.Marshal(e.Record)
		if err != nil {
			return errors.Storage(fmt.Sprintf("encode %s/%s", p, e.Key), err)
		}
		bodies[i] = body
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage(fmt.Sprintf("replace %s", p), err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", p)); err != nil {
		return errors.Storage(fmt.Sprintf("replace %s", p), err)
	}
	for i, e := range entries {
		if err := put(ctx, tx, p, e.Key, e.SortTS, bodies[i]); err != nil {
			return errors.Storage(fmt.Sprintf("replace %s/%s", p, e.Key), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Storage(fmt.Sprintf("replace %s", p), err)
	}
	return nil
}

func (s *Store) allBodies(ctx context.Context, p Partition) ([][]byte, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT body FROM %s ORDER BY sort_ts ASC, key ASC", p))
	if err != nil {
		return nil, errors.Storage(fmt.Sprintf("scan %s", p), err)
	}
	defer rows.Close()

	var bodies [][]byte
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Storage(fmt.Sprintf("scan %s", p), err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage(fmt.Sprintf("scan %s", p), err)
	}
	return bodies, nil
}

func (s *Store) body(ctx context.Context, p Partition, key string) ([]byte, bool, error) {
	if err := p.check(); err != nil {
		return nil, false, err
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT body FROM %s WHERE key = ?", p), key).Scan(&body)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Storage(fmt.Sprintf("get %s/%s", p, key), err)
	}
	return body, true, nil
}

// GetAll decodes every record of the partition, ascending by timestamp
// index then key.
func GetAll[T any](ctx context.Context, s *Store, p Partition) ([]T, error) {
	bodies, err := s.allBodies(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(bodies))
	for _, body := range bodies {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, errors.Storage(fmt.Sprintf("decode %s", p), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// GetByKey decodes one record. A missing key yields found == false and no error.
func GetByKey[T any](ctx context.Context, s *Store, p Partition, key string) (T, bool, error) {
	var v T
	body, found, err := s.body(ctx, p, key)
	if err != nil || !found {
		return v, false, err
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, false, errors.Storage(fmt.Sprintf("decode %s/%s", p, key), err)
	}
	return v, true, nil
}

// Update decodes the record under key, passes it to fn and writes it back in
// place, all in one transaction. It reports whether a write happened: a
// missing key or fn returning false leaves the partition untouched. The
// record keeps its timestamp index. An error from fn is returned as is.
func Update[T any](ctx context.Context, s *Store, p Partition, key string, fn func(v *T) (bool, error)) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	op := fmt.Sprintf("update %s/%s", p, key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Storage(op, err)
	}
	defer tx.Rollback()

	v, found, err := txGet[T](ctx, tx, p, key)
	if err != nil || !found {
		return false, err
	}
	write, err := fn(&v)
	if err != nil || !write {
		return false, err
	}

	body, err := json.Marshal(&v)
	if err != nil {
		return false, errors.Storage(fmt.Sprintf("encode %s/%s", p, key), err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET body = ? WHERE key = ?", p), body, key); err != nil {
		return false, errors.Storage(op, err)
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Storage(op, err)
	}
	return true, nil
}

// DeleteIf removes the record under key if check accepts it, in one
// transaction. It reports whether the key existed; an error from check
// aborts the delete and is returned as is.
func DeleteIf[T any](ctx context.Context, s *Store, p Partition, key string, check func(v *T) error) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	op := fmt.Sprintf("delete %s/%s", p, key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Storage(op, err)
	}
	defer tx.Rollback()

	v, found, err := txGet[T](ctx, tx, p, key)
	if err != nil || !found {
		return false, err
	}
	if err := check(&v); err != nil {
		return true, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", p), key); err != nil {
		return true, errors.Storage(op, err)
	}
	if err := tx.Commit(); err != nil {
		return true, errors.Storage(op, err)
	}
	return true, nil
}

func txGet[T any](ctx context.Context, tx *sql.Tx, p Partition, key string) (T, bool, error) {
	var v T
	var body []byte
	err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT body FROM %s WHERE key = ?", p), key).Scan(&body)
	if stderrors.Is(err, sql.ErrNoRows) {
		return v, false, nil
	}
	if err != nil {
		return v, false, errors.Storage(fmt.Sprintf("get %s/%s", p, key), err)
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, false, errors.Storage(fmt.Sprintf("decode %s/%s", p, key), err)
	}
	return v, true, nil
}
