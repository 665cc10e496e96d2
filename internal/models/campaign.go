package models

import "time"

type Campaign struct {
	ID            int64      `json:"id,string"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	TargetAmount  int64      `json:"target_amount"`
	CurrentAmount int64      `json:"current_amount"`
	Active        bool       `json:"active"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Progress returns the funded fraction in [0, 1].
func (c Campaign) Progress() float64 {
	if c.TargetAmount <= 0 {
		return 0
	}
	p := float64(c.CurrentAmount) / float64(c.TargetAmount)
	if p > 1 {
		return 1
	}
	return p
}
