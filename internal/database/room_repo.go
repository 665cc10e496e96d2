package database

import (
	"context"

	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type roomRepo struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) RoomRepository {
	return &roomRepo{pool: pool}
}

func (r *roomRepo) Create(ctx context.Context, room *models.Room) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO rooms (id, name, created_at) VALUES ($1, $2, $3)`,
		room.ID, room.Name, room.CreatedAt,
	)
	return err
}

func (r *roomRepo) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	room := &models.Room{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM rooms WHERE id = $1`, id,
	).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return room, err
}

func (r *roomRepo) List(ctx context.Context) ([]models.Room, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM rooms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
