package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type donationRepo struct {
	pool *pgxpool.Pool
}

func NewDonationRepository(pool *pgxpool.Pool) DonationRepository {
	return &donationRepo{pool: pool}
}

const donationInsertColumns = `id, amount, currency, category, campaign_id, payer_id, donor_email,
	recurring, billing_interval, status, provider_session_id, created_at, completed_at`

const donationColumns = `id, amount, currency, category, campaign_id, payer_id, donor_email,
	recurring, billing_interval, status, COALESCE(provider_session_id, ''), created_at, completed_at`

func scanDonation(row pgx.Row, d *models.Donation) error {
	return row.Scan(
		&d.ID, &d.Amount, &d.Currency, &d.Category, &d.CampaignID, &d.PayerID, &d.DonorEmail,
		&d.Recurring, &d.Interval, &d.Status, &d.ProviderSessionID, &d.CreatedAt, &d.CompletedAt,
	)
}

func (r *donationRepo) Create(ctx context.Context, d *models.Donation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO donations (`+donationInsertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)`,
		d.ID, d.Amount, d.Currency, d.Category, d.CampaignID, d.PayerID, d.DonorEmail,
		d.Recurring, d.Interval, d.Status, d.ProviderSessionID, d.CreatedAt, d.CompletedAt,
	)
	return err
}

func (r *donationRepo) get(ctx context.Context, where string, arg any) (*models.Donation, error) {
	d := &models.Donation{}
	err := scanDonation(r.pool.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE `+where, arg), d)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (r *donationRepo) GetByID(ctx context.Context, id int64) (*models.Donation, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *donationRepo) GetByProviderSession(ctx context.Context, sessionID string) (*models.Donation, error) {
	return r.get(ctx, `provider_session_id = $1`, sessionID)
}

func (r *donationRepo) SetProviderSession(ctx context.Context, id int64, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE donations SET provider_session_id = $2 WHERE id = $1`, id, sessionID)
	return err
}

func (r *donationRepo) Complete(ctx context.Context, id int64, at time.Time) (*DonationOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var d models.Donation
	err = scanDonation(tx.QueryRow(ctx,
		`UPDATE donations SET status = 'completed', completed_at = $2
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+donationColumns, id, at), &d)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("completing donation %d: %w", id, err)
	}

	outcome := &DonationOutcome{Donation: d}
	if d.CampaignID != nil {
		change, err := creditCampaign(ctx, tx, *d.CampaignID, d.Amount)
		if err != nil {
			return nil, err
		}
		outcome.Campaign = change
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return outcome, nil
}

// creditCampaign adds amount to a campaign's total under a row lock and
// returns the row before and after.
func creditCampaign(ctx context.Context, tx pgx.Tx, campaignID, amount int64) (*CampaignChange, error) {
	var old models.Campaign
	err := scanCampaign(tx.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 FOR UPDATE`, campaignID), &old)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("locking campaign %d: %w", campaignID, err)
	}

	updated := old
	err = tx.QueryRow(ctx,
		`UPDATE campaigns SET current_amount = current_amount + $2 WHERE id = $1
		 RETURNING current_amount`, campaignID, amount,
	).Scan(&updated.CurrentAmount)
	if err != nil {
		return nil, fmt.Errorf("crediting campaign %d: %w", campaignID, err)
	}
	return &CampaignChange{Old: old, New: updated}, nil
}

func (r *donationRepo) Fail(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE donations SET status = 'failed' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *donationRepo) RecordRenewal(ctx context.Context, d *models.Donation) (*DonationOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// provider_session_id carries the invoice id for renewals; the unique
	// index turns a redelivered invoice into a no-op.
	tag, err := tx.Exec(ctx,
		`INSERT INTO donations (`+donationInsertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)
		 ON CONFLICT (provider_session_id) DO NOTHING`,
		d.ID, d.Amount, d.Currency, d.Category, d.CampaignID, d.PayerID, d.DonorEmail,
		d.Recurring, d.Interval, models.DonationCompleted, d.ProviderSessionID, d.CreatedAt, d.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting renewal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	d.Status = models.DonationCompleted

	outcome := &DonationOutcome{Donation: *d}
	if d.CampaignID != nil {
		change, err := creditCampaign(ctx, tx, *d.CampaignID, d.Amount)
		if err != nil {
			return nil, err
		}
		outcome.Campaign = change
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return outcome, nil
}

func (r *donationRepo) ListByCampaign(ctx context.Context, campaignID int64, limit int) ([]models.Donation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+donationColumns+` FROM donations
		 WHERE campaign_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, campaignID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var donations []models.Donation
	for rows.Next() {
		var d models.Donation
		if err := scanDonation(rows, &d); err != nil {
			return nil, err
		}
		donations = append(donations, d)
	}
	return donations, rows.Err()
}
