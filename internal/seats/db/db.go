package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-seating/internal/models"
)

// DB gives the seating service read access to the relational showtime rows
// owned by the cinema CRUD backend. This service never writes them.
type DB struct {
	Bun *bun.DB
}

// ShowtimeExists reports whether the showtime row is present.
func (d *DB) ShowtimeExists(ctx context.Context, id string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Showtime)(nil)).
		Where("id = ?", id).
		Exists(ctx)
}

// GetShowtime fetches one showtime, nil when absent.
func (d *DB) GetShowtime(ctx context.Context, id string) (*models.Showtime, error) {
	var showtime models.Showtime
	err := d.Bun.NewSelect().
		Model(&showtime).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &showtime, nil
}
