package database

import (
	"context"
	"slices"
	"time"

	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type messageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepo{pool: pool}
}

const messageSelect = `SELECT m.id, m.room_id, m.author_id, m.content, m.reply_to_id,
	        m.deleted, m.deleted_by, m.deleted_at, m.created_at,
	        u.username, u.display_name
	 FROM messages m
	 INNER JOIN users u ON u.id = m.author_id`

func scanMessage(row pgx.Row, m *models.MessageWithAuthor) error {
	return row.Scan(
		&m.ID, &m.RoomID, &m.AuthorID, &m.Content, &m.ReplyToID,
		&m.Deleted, &m.DeletedBy, &m.DeletedAt, &m.CreatedAt,
		&m.AuthorUsername, &m.AuthorDisplayName,
	)
}

func (r *messageRepo) Create(ctx context.Context, msg *models.Message) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, room_id, author_id, content, reply_to_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.RoomID, msg.AuthorID, msg.Content, msg.ReplyToID, msg.CreatedAt,
	)
	return err
}

func (r *messageRepo) GetByID(ctx context.Context, id int64) (*models.MessageWithAuthor, error) {
	m := &models.MessageWithAuthor{}
	err := scanMessage(r.pool.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id), m)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *messageRepo) GetRecent(ctx context.Context, roomID int64, before *int64, limit int) ([]models.MessageWithAuthor, error) {
	rows, err := r.pool.Query(ctx,
		messageSelect+`
		 WHERE m.room_id = $1 AND ($2::BIGINT IS NULL OR m.id < $2)
		 ORDER BY m.id DESC
		 LIMIT $3`,
		roomID, before, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.MessageWithAuthor
	for rows.Next() {
		var m models.MessageWithAuthor
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Snowflake ids are time-ordered, so reversing the newest-first page
	// yields creation order.
	slices.Reverse(messages)
	return messages, nil
}

func (r *messageRepo) SoftDelete(ctx context.Context, id, deletedBy int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET deleted = TRUE, deleted_by = $2, deleted_at = $3
		 WHERE id = $1 AND NOT deleted`,
		id, deletedBy, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
