package live

import (
	"cmp"
	"encoding/json"

	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/models"
)

// Notice announces that a campaign received money.
type Notice struct {
	CampaignID int64
	Title      string
	Delta      int64
	Total      int64
}

// CampaignBoard is the local, newest-first view of fundraising campaigns.
type CampaignBoard struct {
	table *Table[models.Campaign]
}

func NewCampaignBoard() *CampaignBoard {
	t := NewTable(
		func(c models.Campaign) int64 { return c.ID },
		func(a, b models.Campaign) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(b.ID, a.ID)
		},
	).WithMerge(mergeCampaign)
	return &CampaignBoard{table: t}
}

// mergeCampaign takes the incoming fields but never lets the raised amount
// go backwards; totals only grow, so a lower one is a stale delivery.
func mergeCampaign(old, incoming models.Campaign) models.Campaign {
	if incoming.CurrentAmount < old.CurrentAmount {
		incoming.CurrentAmount = old.CurrentAmount
	}
	return incoming
}

func (b *CampaignBoard) Hydrate(campaigns []models.Campaign) {
	b.table.Hydrate(campaigns)
}

// Apply merges one CHANGE event. It returns a Notice when the event raised a
// campaign's total above what this board had seen.
func (b *CampaignBoard) Apply(change gateway.RawChange) (*Notice, error) {
	if change.Table != gateway.TableCampaigns {
		return nil, nil
	}

	var incoming models.Campaign
	if err := json.Unmarshal(change.New, &incoming); err != nil {
		return nil, err
	}

	// The local copy is the baseline so a redelivered event is a no-op.
	// Without one, fall back to the server's old row.
	before, known := b.table.Get(incoming.ID)
	if !known && change.Type == gateway.ChangeUpdate && len(change.Old) > 0 {
		if err := json.Unmarshal(change.Old, &before); err == nil {
			known = true
		}
	}

	row, _, _, err := b.table.Apply(change)
	if err != nil {
		return nil, err
	}
	if change.Type != gateway.ChangeUpdate || !known || row.CurrentAmount <= before.CurrentAmount {
		return nil, nil
	}
	return &Notice{
		CampaignID: row.ID,
		Title:      row.Title,
		Delta:      row.CurrentAmount - before.CurrentAmount,
		Total:      row.CurrentAmount,
	}, nil
}

func (b *CampaignBoard) Campaigns() []models.Campaign { return b.table.Rows() }

func (b *CampaignBoard) Campaign(id int64) (models.Campaign, bool) { return b.table.Get(id) }
