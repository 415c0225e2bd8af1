// Package postgres is a durable ledger.AccountStore on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/coldbell/predictchain/internal/ledger"
)

type Store struct {
	db *DB
}

var _ ledger.AccountStore = (*Store)(nil)

type DB struct {
	raw *sql.DB
}

type Tx struct {
	raw *sql.Tx
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{raw: tx}, nil
}

func (db *DB) Close() error {
	return db.raw.Close()
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return tx.raw.PrepareContext(ctx, rebindPostgresPlaceholders(query))
}

func (tx *Tx) Commit() error {
	return tx.raw.Commit()
}

func (tx *Tx) Rollback() error {
	return tx.raw.Rollback()
}

// rebindPostgresPlaceholders turns ? placeholders outside string literals
// into $n.
func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	inSingleQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			out.WriteByte(ch)
			if inSingleQuote {
				// SQL escape: two single quotes inside a string literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inSingleQuote = false
			} else {
				inSingleQuote = true
			}
			continue
		}

		if ch == '?' && !inSingleQuote {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
			continue
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func NewStore(ctx context.Context, dbDSN string) (*Store, error) {
	db, err := sql.Open("pgx", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: &DB{raw: db}}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS ledger_state (
			id BIGINT PRIMARY KEY CHECK (id = 1),
			last_slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_accounts (
			pubkey TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			lamports TEXT NOT NULL,
			data BYTEA NOT NULL,
			executable BOOLEAN NOT NULL DEFAULT FALSE,
			slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_accounts_owner ON ledger_accounts(owner);`,
	}

	for _, query := range ddl {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Load(ctx context.Context, keys []solana.PublicKey) (map[solana.PublicKey]*ledger.Account, error) {
	out := make(map[solana.PublicKey]*ledger.Account, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	encoded := make([]string, 0, len(keys))
	for _, key := range keys {
		encoded = append(encoded, key.String())
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pubkey, owner, lamports, data, executable
		FROM ledger_accounts
		WHERE pubkey = ANY(?)
	`, encoded)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pubkey, owner, lamports string
			data                    []byte
			executable              bool
		)
		if err := rows.Scan(&pubkey, &owner, &lamports, &data, &executable); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		key, account, err := decodeRow(pubkey, owner, lamports, data, executable)
		if err != nil {
			return nil, err
		}
		out[key] = account
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func decodeRow(pubkey, owner, lamports string, data []byte, executable bool) (solana.PublicKey, *ledger.Account, error) {
	key, err := solana.PublicKeyFromBase58(pubkey)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("invalid pubkey %q: %w", pubkey, err)
	}
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("invalid owner of %s: %w", pubkey, err)
	}
	balance, err := strconv.ParseUint(lamports, 10, 64)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("invalid lamports of %s: %w", pubkey, err)
	}
	if data == nil {
		data = []byte{}
	}
	return key, &ledger.Account{
		Owner:      ownerKey,
		Lamports:   balance,
		Data:       data,
		Executable: executable,
	}, nil
}

// Commit writes accounts and the slot in one SQL transaction.
func (s *Store) Commit(ctx context.Context, slot uint64, accounts map[solana.PublicKey]*ledger.Account) error {
	now := time.Now().Unix()
	return s.WithTx(ctx, func(tx *Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ledger_accounts (pubkey, owner, lamports, data, executable, slot, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(pubkey) DO UPDATE SET
				owner = excluded.owner,
				lamports = excluded.lamports,
				data = excluded.data,
				executable = excluded.executable,
				slot = excluded.slot,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("prepare account upsert: %w", err)
		}
		defer stmt.Close()

		for key, account := range accounts {
			if _, err := stmt.ExecContext(ctx,
				key.String(),
				account.Owner.String(),
				strconv.FormatUint(account.Lamports, 10),
				account.Data,
				account.Executable,
				int64(slot),
				now,
			); err != nil {
				return fmt.Errorf("upsert account %s: %w", key, err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_state (id, last_slot, updated_at)
			VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				last_slot = excluded.last_slot,
				updated_at = excluded.updated_at
		`, int64(slot), now)
		if err != nil {
			return fmt.Errorf("update ledger slot: %w", err)
		}
		return nil
	})
}

func (s *Store) LatestSlot(ctx context.Context) (uint64, error) {
	var slot int64
	err := s.db.QueryRowContext(ctx, `SELECT last_slot FROM ledger_state WHERE id = 1`).Scan(&slot)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query ledger slot: %w", err)
	}
	return uint64(slot), nil
}
