package database

import (
	"context"
	"time"

	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type campaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaignRepository(pool *pgxpool.Pool) CampaignRepository {
	return &campaignRepo{pool: pool}
}

const campaignColumns = `id, title, description, target_amount, current_amount, active, end_date, created_at`

func scanCampaign(row pgx.Row, c *models.Campaign) error {
	return row.Scan(&c.ID, &c.Title, &c.Description, &c.TargetAmount, &c.CurrentAmount, &c.Active, &c.EndDate, &c.CreatedAt)
}

func (r *campaignRepo) Create(ctx context.Context, c *models.Campaign) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO campaigns (id, title, description, target_amount, current_amount, active, end_date, created_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7)`,
		c.ID, c.Title, c.Description, c.TargetAmount, c.Active, c.EndDate, c.CreatedAt,
	)
	return err
}

func (r *campaignRepo) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	c := &models.Campaign{}
	err := scanCampaign(r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id), c)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *campaignRepo) List(ctx context.Context, activeOnly bool) ([]models.Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		 WHERE NOT $1 OR active
		 ORDER BY created_at DESC, id DESC`, activeOnly,
	)
	if err != nil {
		return nil, err
	}
	return collectCampaigns(rows)
}

func collectCampaigns(rows pgx.Rows) ([]models.Campaign, error) {
	defer rows.Close()
	var campaigns []models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := scanCampaign(rows, &c); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *campaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	return scanCampaign(r.pool.QueryRow(ctx,
		`UPDATE campaigns SET title = $2, description = $3, target_amount = $4, active = $5, end_date = $6
		 WHERE id = $1
		 RETURNING `+campaignColumns,
		c.ID, c.Title, c.Description, c.TargetAmount, c.Active, c.EndDate,
	), c)
}

func (r *campaignRepo) CloseExpired(ctx context.Context, now time.Time) ([]CampaignChange, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE campaigns SET active = FALSE
		 WHERE active AND end_date IS NOT NULL AND end_date <= $1
		 RETURNING `+campaignColumns, now,
	)
	if err != nil {
		return nil, err
	}
	closed, err := collectCampaigns(rows)
	if err != nil {
		return nil, err
	}

	changes := make([]CampaignChange, 0, len(closed))
	for _, c := range closed {
		old := c
		old.Active = true
		changes = append(changes, CampaignChange{Old: old, New: c})
	}
	return changes, nil
}
