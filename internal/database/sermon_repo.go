package database

import (
	"context"

	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type sermonRepo struct {
	pool *pgxpool.Pool
}

func NewSermonRepository(pool *pgxpool.Pool) SermonRepository {
	return &sermonRepo{pool: pool}
}

const sermonColumns = `id, title, speaker, kind, media_key, media_url, content_type, size, uploaded_by, published_at`

func scanSermon(row pgx.Row, s *models.Sermon) error {
	return row.Scan(&s.ID, &s.Title, &s.Speaker, &s.Kind, &s.MediaKey, &s.MediaURL,
		&s.ContentType, &s.Size, &s.UploadedBy, &s.PublishedAt)
}

func (r *sermonRepo) Create(ctx context.Context, s *models.Sermon) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sermons (`+sermonColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.Title, s.Speaker, s.Kind, s.MediaKey, s.MediaURL,
		s.ContentType, s.Size, s.UploadedBy, s.PublishedAt,
	)
	return err
}

func (r *sermonRepo) GetByID(ctx context.Context, id int64) (*models.Sermon, error) {
	s := &models.Sermon{}
	err := scanSermon(r.pool.QueryRow(ctx, `SELECT `+sermonColumns+` FROM sermons WHERE id = $1`, id), s)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// List returns the newest sermons, optionally only those of one kind.
func (r *sermonRepo) List(ctx context.Context, kind *models.SermonKind, limit int) ([]models.Sermon, error) {
	var kindFilter *string
	if kind != nil {
		k := string(*kind)
		kindFilter = &k
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+sermonColumns+` FROM sermons
		 WHERE ($1::TEXT IS NULL OR kind = $1)
		 ORDER BY published_at DESC, id DESC
		 LIMIT $2`, kindFilter, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sermons []models.Sermon
	for rows.Next() {
		var s models.Sermon
		if err := scanSermon(rows, &s); err != nil {
			return nil, err
		}
		sermons = append(sermons, s)
	}
	return sermons, rows.Err()
}
