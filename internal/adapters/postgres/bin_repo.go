package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/wastemap/internal/core/domain"
)

// ErrBinNotFound is returned when no row matches the requested id.
var ErrBinNotFound = fmt.Errorf("bin %w", domain.ErrNotFound)

const binColumns = `
	id::text, label, status,
	ST_Y(location::geometry) AS lat,
	ST_X(location::geometry) AS lon,
	updated_at`

// BinRepo implements ports.BinRepository with pgx and PostGIS.
type BinRepo struct {
	db *DB
}

// NewBinRepo creates a new BinRepo.
func NewBinRepo(db *DB) *BinRepo {
	return &BinRepo{db: db}
}

func scanBin(row pgx.Row) (domain.TrashLocation, error) {
	var (
		l      domain.TrashLocation
		status string
	)
	if err := row.Scan(&l.ID, &l.Label, &status, &l.Coordinates.Lat, &l.Coordinates.Lon, &l.UpdatedAt); err != nil {
		return domain.TrashLocation{}, err
	}
	l.Status = domain.BinStatus(status)
	return l, nil
}

func collectBins(rows pgx.Rows) ([]domain.TrashLocation, error) {
	defer rows.Close()
	var out []domain.TrashLocation
	for rows.Next() {
		l, err := scanBin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// List returns every bin in creation order, which is also the marker order.
func (r *BinRepo) List(ctx context.Context) ([]domain.TrashLocation, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+binColumns+` FROM bins ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list bins: %w", err)
	}
	return collectBins(rows)
}

// GetByID returns one bin, or ErrBinNotFound.
func (r *BinRepo) GetByID(ctx context.Context, id string) (*domain.TrashLocation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBinNotFound
	}
	l, err := scanBin(r.db.Pool.QueryRow(ctx, `SELECT `+binColumns+` FROM bins WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBinNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bin %s: %w", id, err)
	}
	return &l, nil
}

// Create inserts loc, assigning a new UUID when it has none.
func (r *BinRepo) Create(ctx context.Context, loc *domain.TrashLocation) error {
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO bins (id, label, status, location)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography)
		RETURNING updated_at
	`, loc.ID, loc.Label, string(loc.Status), loc.Coordinates.Lon, loc.Coordinates.Lat).Scan(&loc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bin: %w", err)
	}
	return nil
}

// UpdateStatus flips a bin between empty and full.
func (r *BinRepo) UpdateStatus(ctx context.Context, id string, status domain.BinStatus) (*domain.TrashLocation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBinNotFound
	}
	l, err := scanBin(r.db.Pool.QueryRow(ctx, `
		UPDATE bins SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+binColumns, id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBinNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update bin %s: %w", id, err)
	}
	return &l, nil
}

// FindInBounds returns bins inside a bounding box using the GiST index.
func (r *BinRepo) FindInBounds(ctx context.Context, b domain.Bounds) ([]domain.TrashLocation, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+binColumns+`
		FROM bins
		WHERE location && ST_MakeEnvelope($1, $2, $3, $4, 4326)::geography
		ORDER BY created_at, id
	`, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
	if err != nil {
		return nil, fmt.Errorf("bins in bounds: %w", err)
	}
	return collectBins(rows)
}
