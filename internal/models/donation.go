package models

import "time"

type DonationStatus string

const (
	DonationPending   DonationStatus = "pending"
	DonationCompleted DonationStatus = "completed"
	DonationFailed    DonationStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s DonationStatus) Terminal() bool {
	return s == DonationCompleted || s == DonationFailed
}

// CanTransition encodes pending -> completed | failed.
func CanTransition(from, to DonationStatus) bool {
	return from == DonationPending && to.Terminal()
}

type DonationCategory string

const (
	CategoryTithe    DonationCategory = "tithe"
	CategoryOffering DonationCategory = "offering"
	CategoryMissions DonationCategory = "missions"
	CategoryBuilding DonationCategory = "building"
	CategoryCampaign DonationCategory = "campaign"
)

func (c DonationCategory) Valid() bool {
	switch c {
	case CategoryTithe, CategoryOffering, CategoryMissions, CategoryBuilding, CategoryCampaign:
		return true
	}
	return false
}

type Donation struct {
	ID                int64            `json:"id,string"`
	Amount            int64            `json:"amount"`
	Currency          string           `json:"currency"`
	Category          DonationCategory `json:"category"`
	CampaignID        *int64           `json:"campaign_id,string,omitempty"`
	PayerID           *int64           `json:"payer_id,string,omitempty"`
	DonorEmail        string           `json:"donor_email,omitempty"`
	Recurring         bool             `json:"recurring"`
	Interval          string           `json:"interval,omitempty"`
	Status            DonationStatus   `json:"status"`
	ProviderSessionID string           `json:"-"`
	CreatedAt         time.Time        `json:"created_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}
