// Package postgres backs the ledger with PostgreSQL. The custody_events table
// is append-only; the products table is the materialized projection. Both are
// written in one SQL transaction, so the projection and the event log cannot
// diverge. Block numbers come from a sequence; every transaction occupies one
// block and its events take log indices 0..n within it.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"chaintrail/internal/ledger"
	id "chaintrail/pkg/domain"
	"chaintrail/pkg/platform/sentinel"
)

type Ledger struct {
	db           *sql.DB
	manufacturer id.Address
}

// New wraps an open database handle. Call EnsureSchema before first use.
func New(db *sql.DB, manufacturer id.Address) *Ledger {
	return &Ledger{db: db, manufacturer: manufacturer}
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id             BIGINT PRIMARY KEY,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL,
	owner          TEXT NOT NULL,
	status         SMALLINT NOT NULL,
	is_counterfeit BOOLEAN NOT NULL DEFAULT FALSE,
	available      BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE SEQUENCE IF NOT EXISTS block_no_seq;

CREATE TABLE IF NOT EXISTS custody_events (
	block_no   BIGINT NOT NULL,
	log_index  INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	product_id BIGINT NOT NULL,
	from_addr  TEXT NOT NULL DEFAULT '',
	to_addr    TEXT NOT NULL DEFAULT '',
	by_addr    TEXT NOT NULL DEFAULT '',
	available  BOOLEAN NOT NULL DEFAULT FALSE,
	tx_ref     UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (block_no, log_index)
);

CREATE INDEX IF NOT EXISTS custody_events_product_kind_idx
	ON custody_events (product_id, kind, block_no, log_index);
`

// EnsureSchema creates the ledger tables if they do not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

func (l *Ledger) AddProduct(ctx context.Context, caller id.Address, name, description string) (id.ProductID, id.TxRef, error) {
	if !caller.Equal(l.manufacturer) {
		return 0, id.TxRef{}, sentinel.ErrNotManufacturer
	}
	var productID id.ProductID
	txRef := id.NewTxRef()
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		// Concurrent mints may compute the same id; the primary key makes
		// the loser's insert fail and the whole transaction is rejected.
		var next sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT max(id) FROM products`).Scan(&next); err != nil {
			return fmt.Errorf("read max product id: %w", err)
		}
		assigned := int64(0)
		if next.Valid {
			assigned = next.Int64 + 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, name, description, owner, status) VALUES ($1, $2, $3, $4, $5)`,
			assigned, name, description, l.manufacturer.String(), id.StatusCreated.Code(),
		); err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrRejected
			}
			return fmt.Errorf("insert product: %w", err)
		}
		// Creation consumes a block even though no event row is written,
		// matching the chain semantics of one block per transaction.
		if _, err := tx.ExecContext(ctx, `SELECT nextval('block_no_seq')`); err != nil {
			return fmt.Errorf("advance block: %w", err)
		}
		productID = id.ProductID(assigned)
		return nil
	})
	if err != nil {
		return 0, id.TxRef{}, err
	}
	return productID, txRef, nil
}

func (l *Ledger) GetProduct(ctx context.Context, productID id.ProductID) (ledger.ProductRecord, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, name, description, owner, status, is_counterfeit, available
		 FROM products WHERE id = $1`, int64(productID))
	return scanProduct(row)
}

func (l *Ledger) NextProductID(ctx context.Context) (id.ProductID, error) {
	var next sql.NullInt64
	if err := l.db.QueryRowContext(ctx, `SELECT max(id) FROM products`).Scan(&next); err != nil {
		return 0, wrapUnavailable(err, "read next product id")
	}
	if !next.Valid {
		return 0, nil
	}
	return id.ProductID(next.Int64 + 1), nil
}

func (l *Ledger) TransferProduct(ctx context.Context, caller id.Address, productID id.ProductID, to id.Address) (id.TxRef, error) {
	if to.IsZero() {
		return id.TxRef{}, sentinel.ErrRejected
	}
	txRef := id.NewTxRef()
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		record, err := lockProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if !record.Owner.Equal(caller) {
			return sentinel.ErrNotOwner
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET owner = $1, status = $2 WHERE id = $3`,
			to.String(), id.StatusPendingAcceptance.Code(), int64(productID),
		); err != nil {
			return fmt.Errorf("update owner: %w", err)
		}
		return appendEvent(ctx, tx, ledger.Event{
			Kind:      ledger.EventOwnershipTransferred,
			ProductID: productID,
			From:      record.Owner,
			To:        to,
			TxRef:     txRef,
		})
	})
	if err != nil {
		return id.TxRef{}, err
	}
	return txRef, nil
}

func (l *Ledger) AcceptProduct(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	return l.confirm(ctx, caller, productID, ledger.EventProductAccepted)
}

func (l *Ledger) ReceiveProduct(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	return l.confirm(ctx, caller, productID, ledger.EventProductReceived)
}

func (l *Ledger) confirm(ctx context.Context, caller id.Address, productID id.ProductID, kind ledger.EventKind) (id.TxRef, error) {
	txRef := id.NewTxRef()
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		record, err := lockProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if !record.Owner.Equal(caller) {
			return sentinel.ErrNotOwner
		}
		if !record.Status.CanConfirm() {
			return sentinel.ErrInvalidState
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET status = $1 WHERE id = $2`,
			id.StatusConfirmed.Code(), int64(productID),
		); err != nil {
			return fmt.Errorf("confirm product: %w", err)
		}
		return appendEvent(ctx, tx, ledger.Event{
			Kind:      kind,
			ProductID: productID,
			By:        caller,
			TxRef:     txRef,
		})
	})
	if err != nil {
		return id.TxRef{}, err
	}
	return txRef, nil
}

func (l *Ledger) UpdateAvailability(ctx context.Context, caller id.Address, productID id.ProductID, available bool) (id.TxRef, error) {
	txRef := id.NewTxRef()
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		record, err := lockProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if !record.Owner.Equal(caller) {
			return sentinel.ErrNotOwner
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET available = $1 WHERE id = $2`,
			available, int64(productID),
		); err != nil {
			return fmt.Errorf("update availability: %w", err)
		}
		return appendEvent(ctx, tx, ledger.Event{
			Kind:      ledger.EventAvailabilityUpdated,
			ProductID: productID,
			By:        caller,
			Available: available,
			TxRef:     txRef,
		})
	})
	if err != nil {
		return id.TxRef{}, err
	}
	return txRef, nil
}

func (l *Ledger) ReportCounterfeit(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	txRef := id.NewTxRef()
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockProduct(ctx, tx, productID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET is_counterfeit = TRUE WHERE id = $1`,
			int64(productID),
		); err != nil {
			return fmt.Errorf("set counterfeit flag: %w", err)
		}
		return appendEvent(ctx, tx, ledger.Event{
			Kind:      ledger.EventCounterfeitReported,
			ProductID: productID,
			By:        caller,
			TxRef:     txRef,
		})
	})
	if err != nil {
		return id.TxRef{}, err
	}
	return txRef, nil
}

func (l *Ledger) Events(ctx context.Context, kind ledger.EventKind, productID id.ProductID) ([]ledger.Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT block_no, log_index, kind, product_id, from_addr, to_addr, by_addr, available, tx_ref
		 FROM custody_events
		 WHERE product_id = $1 AND kind = $2
		 ORDER BY block_no, log_index`,
		int64(productID), string(kind))
	if err != nil {
		return nil, wrapUnavailable(err, "query events")
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			event          ledger.Event
			block          int64
			index          int32
			kindStr        string
			pid            int64
			from, to, by   string
			txRefStr       string
		)
		if err := rows.Scan(&block, &index, &kindStr, &pid, &from, &to, &by, &event.Available, &txRefStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Seq = ledger.SeqPosition{Block: uint64(block), Index: uint32(index)}
		event.Kind = ledger.EventKind(kindStr)
		event.ProductID = id.ProductID(pid)
		event.From = id.Address(from)
		event.To = id.Address(to)
		event.By = id.Address(by)
		txRef, err := id.ParseTxRef(txRefStr)
		if err != nil {
			return nil, fmt.Errorf("parse tx ref: %w", err)
		}
		event.TxRef = txRef
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable(err, "iterate events")
	}
	return events, nil
}

// inTx runs fn in a transaction, committing only if fn returns nil. Sentinel
// errors pass through untouched so services can classify guard failures.
func (l *Ledger) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapUnavailable(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return sentinel.ErrRejected
		}
		return wrapUnavailable(err, "commit transaction")
	}
	return nil
}

func lockProduct(ctx context.Context, tx *sql.Tx, productID id.ProductID) (ledger.ProductRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, name, description, owner, status, is_counterfeit, available
		 FROM products WHERE id = $1 FOR UPDATE`, int64(productID))
	return scanProduct(row)
}

func appendEvent(ctx context.Context, tx *sql.Tx, event ledger.Event) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO custody_events (block_no, log_index, kind, product_id, from_addr, to_addr, by_addr, available, tx_ref)
		 VALUES (nextval('block_no_seq'), 0, $1, $2, $3, $4, $5, $6, $7)`,
		string(event.Kind), int64(event.ProductID),
		event.From.String(), event.To.String(), event.By.String(),
		event.Available, event.TxRef.String())
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func scanProduct(row *sql.Row) (ledger.ProductRecord, error) {
	var (
		record     ledger.ProductRecord
		pid        int64
		owner      string
		statusCode int16
	)
	err := row.Scan(&pid, &record.Name, &record.Description, &owner, &statusCode, &record.IsCounterfeit, &record.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ProductRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return ledger.ProductRecord{}, wrapUnavailable(err, "read product")
	}
	record.ID = id.ProductID(pid)
	record.Owner = id.Address(owner)
	status, err := id.CustodyStatusFromCode(uint8(statusCode))
	if err != nil {
		return ledger.ProductRecord{}, fmt.Errorf("product %d: %w", pid, err)
	}
	record.Status = status
	return record, nil
}

func wrapUnavailable(err error, op string) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40001"
}
