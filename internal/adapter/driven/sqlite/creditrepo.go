package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CreditStore = (*CreditRepo)(nil)

// CreditRepo is the SQLite implementation of the CreditStore port interface.
// Status is viewer-relative and therefore never stored.
type CreditRepo struct {
	db *DB
}

// NewCreditRepo creates a new CreditRepo backed by the given DB.
func NewCreditRepo(db *DB) *CreditRepo {
	return &CreditRepo{db: db}
}

// UpsertAll writes the records in one transaction. Producer and production
// time are fixed at first insert. The retired column only ever moves from 0
// to 1, and an empty energy source never overwrites a stored one.
func (r *CreditRepo) UpsertAll(ctx context.Context, records []model.CreditRecord) error {
	const query = `
		INSERT INTO credits (token_id, producer, energy_source, production_time, owner, retired, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			energy_source = CASE WHEN excluded.energy_source != '' THEN excluded.energy_source ELSE credits.energy_source END,
			owner         = excluded.owner,
			retired       = MAX(credits.retired, excluded.retired),
			updated_at    = excluded.updated_at`

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credit upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare credit upsert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			int64(rec.ID),
			string(rec.Producer),
			string(rec.EnergySource),
			unixOrZero(rec.ProductionTime),
			string(rec.Owner),
			boolToInt(rec.Retired),
			now,
		)
		if err != nil {
			return fmt.Errorf("upsert credit %d: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credit upsert: %w", err)
	}
	return nil
}

// ListAll returns all stored credits ordered by token ID.
func (r *CreditRepo) ListAll(ctx context.Context) ([]model.CreditRecord, error) {
	const query = `SELECT token_id, producer, energy_source, production_time, owner, retired FROM credits ORDER BY token_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	defer rows.Close()

	var records []model.CreditRecord
	for rows.Next() {
		rec, err := scanCredit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credits: %w", err)
	}

	return records, nil
}

// GetByID returns the stored credit, or nil, nil if the token is unknown.
func (r *CreditRepo) GetByID(ctx context.Context, id model.TokenID) (*model.CreditRecord, error) {
	const query = `SELECT token_id, producer, energy_source, production_time, owner, retired FROM credits WHERE token_id = ?`

	rec, err := scanCredit(r.db.Reader.QueryRowContext(ctx, query, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credit %d: %w", id, err)
	}
	return rec, nil
}

// RetiredIDs returns the set of tokens stored as retired.
func (r *CreditRepo) RetiredIDs(ctx context.Context) (map[model.TokenID]bool, error) {
	const query = `SELECT token_id FROM credits WHERE retired = 1`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list retired credits: %w", err)
	}
	defer rows.Close()

	ids := make(map[model.TokenID]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan retired credit: %w", err)
		}
		ids[model.TokenID(id)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retired credits: %w", err)
	}
	return ids, nil
}

func scanCredit(s scanner) (*model.CreditRecord, error) {
	var (
		rec            model.CreditRecord
		id             int64
		producer       string
		source         string
		productionUnix int64
		owner          string
		retired        int
	)

	if err := s.Scan(&id, &producer, &source, &productionUnix, &owner, &retired); err != nil {
		return nil, err
	}

	rec.ID = model.TokenID(id)
	rec.Producer = model.Address(producer)
	rec.EnergySource = model.EnergySource(source)
	if productionUnix != 0 {
		rec.ProductionTime = time.Unix(productionUnix, 0).UTC()
	}
	rec.Owner = model.Address(owner)
	rec.Retired = retired != 0

	return &rec, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
