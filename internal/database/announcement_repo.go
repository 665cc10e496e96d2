package database

import (
	"context"

	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type announcementRepo struct {
	pool *pgxpool.Pool
}

func NewAnnouncementRepository(pool *pgxpool.Pool) AnnouncementRepository {
	return &announcementRepo{pool: pool}
}

func (r *announcementRepo) Create(ctx context.Context, a *models.Announcement) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO announcements (id, title, body, author_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Title, a.Body, a.AuthorID, a.CreatedAt,
	)
	return err
}

// List returns announcements newest-first.
func (r *announcementRepo) List(ctx context.Context, before *int64, limit int) ([]models.Announcement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, body, author_id, created_at FROM announcements
		 WHERE ($1::BIGINT IS NULL OR id < $1)
		 ORDER BY id DESC
		 LIMIT $2`, before, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Announcement
	for rows.Next() {
		var a models.Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.Body, &a.AuthorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
