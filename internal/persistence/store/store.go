// Package store is the queryable index over committed ticks: a relational
// mirror of the journal for the HTTP read surface and the admin tooling.
// SQLite serves single-node deployments; a postgres DSN switches the same
// schema onto lib/pq. The in-memory ledger stays authoritative; losing
// this database loses queries, not state.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"tessera.estate/internal/money"
	"tessera.estate/internal/sim/ledger"
	"tessera.estate/internal/sim/market"
	"tessera.estate/internal/sim/network"
)

type Store struct {
	db *sqlx.DB
}

// Open connects by DSN: "postgres://..." selects lib/pq, anything else is
// treated as a sqlite file path. Migrations run on open.
func Open(dsn string) (*Store, error) {
	driver, dialect := "sqlite", "sqlite3"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, dialect = "postgres", "postgres"
	} else if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		for _, p := range []string{
			"PRAGMA journal_mode=WAL;",
			"PRAGMA synchronous=NORMAL;",
			"PRAGMA busy_timeout=5000;",
		} {
			if _, err := db.Exec(p); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
	}
	if _, err := migrate.Exec(db.DB, dialect, migrations, migrate.Up); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// AppendTick mirrors one committed tick in a single transaction. It
// implements network.TickSink.
func (s *Store) AppendTick(rec network.TickRecord) error {
	snap, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return err
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.db.Rebind(
		`INSERT INTO ticks (network_id, month, digest, snapshot, created_at) VALUES (?, ?, ?, ?, ?)`),
		rec.NetworkID, rec.Month, rec.Digest, string(snap), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("insert tick %d: %w", rec.Month, err)
	}

	for _, e := range rec.Entries {
		if _, err := tx.Exec(s.db.Rebind(
			`INSERT INTO entries (network_id, id, month, type, from_id, to_id, property_id, amount, tokens, detail, prev_hash, hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			rec.NetworkID, e.ID, e.Month, e.Type, e.From, e.To, e.PropertyID,
			int64(e.Amount), e.Tokens, e.Detail, e.PrevHash, e.Hash,
		); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}

	for _, a := range rec.Actions {
		if _, err := tx.Exec(s.db.Rebind(
			`INSERT INTO actions (network_id, action_id, month, actor, type, priority, seq, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			rec.NetworkID, a.ID, rec.Month, a.Actor, a.Type, a.Priority, a.Seq, string(a.Payload),
		); err != nil {
			return fmt.Errorf("insert action %s: %w", a.ID, err)
		}
	}

	for i, ev := range rec.Events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(s.db.Rebind(
			`INSERT INTO events (network_id, month, seq, payload) VALUES (?, ?, ?, ?)`),
			rec.NetworkID, rec.Month, i, string(payload),
		); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// LatestMonth reports the last mirrored month for a network, 0 when none.
func (s *Store) LatestMonth(networkID string) (int, error) {
	var month sql.NullInt64
	err := s.db.Get(&month, s.db.Rebind(
		`SELECT MAX(month) FROM ticks WHERE network_id = ?`), networkID)
	if err != nil {
		return 0, err
	}
	return int(month.Int64), nil
}

// Snapshot loads the stored snapshot for one month.
func (s *Store) Snapshot(networkID string, month int) (*market.Snapshot, error) {
	var raw string
	err := s.db.Get(&raw, s.db.Rebind(
		`SELECT snapshot FROM ticks WHERE network_id = ? AND month = ?`), networkID, month)
	if err != nil {
		return nil, err
	}
	var snap market.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("snapshot month %d: %w", month, err)
	}
	return &snap, nil
}

type entryRow struct {
	ID         string `db:"id"`
	Month      int    `db:"month"`
	Type       string `db:"type"`
	From       string `db:"from_id"`
	To         string `db:"to_id"`
	PropertyID string `db:"property_id"`
	Amount     int64  `db:"amount"`
	Tokens     int64  `db:"tokens"`
	Detail     string `db:"detail"`
	PrevHash   string `db:"prev_hash"`
	Hash       string `db:"hash"`
}

// Entries queries mirrored ledger entries, optionally filtered by
// participant and property, in insertion order.
func (s *Store) Entries(networkID, participant, property string, limit int) ([]ledger.Entry, error) {
	q := `SELECT id, month, type, from_id, to_id, property_id, amount, tokens, detail, prev_hash, hash
	      FROM entries WHERE network_id = ?`
	args := []interface{}{networkID}
	if participant != "" {
		q += ` AND (from_id = ? OR to_id = ?)`
		args = append(args, participant, participant)
	}
	if property != "" {
		q += ` AND property_id = ?`
		args = append(args, property)
	}
	q += ` ORDER BY month, id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []entryRow
	if err := s.db.Select(&rows, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, len(rows))
	for i, r := range rows {
		out[i] = ledger.Entry{
			ID: r.ID, Month: r.Month, Type: r.Type, From: r.From, To: r.To,
			PropertyID: r.PropertyID, Amount: money.Cents(r.Amount), Tokens: r.Tokens,
			Detail: r.Detail, PrevHash: r.PrevHash, Hash: r.Hash,
		}
	}
	return out, nil
}
