package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Showtime mirrors the screening row owned by the cinema CRUD backend. This
// service only reads it for existence checks before mutating seat state; the
// seat's business identity (row, category, price) stays with that backend.
type Showtime struct {
	bun.BaseModel `bun:"table:showtimes"`

	ID        string    `bun:"id,pk" json:"id"`
	FilmID    string    `bun:"film_id,notnull" json:"film_id"`
	HallID    string    `bun:"hall_id,notnull" json:"hall_id"`
	StartsAt  time.Time `bun:"starts_at,notnull" json:"starts_at"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
