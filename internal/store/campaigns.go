package store

import (
	"errors"
	"fmt"
)

// CampaignSummary aggregates stored runs for one campaign.
type CampaignSummary struct {
	CampaignID string `json:"campaign_id"`
	Total      int    `json:"total"`
	Complete   int    `json:"complete"`
	Failed     int    `json:"failed"`
}

// CampaignSummaries groups evaluations by campaign, busiest campaigns first.
// Rows whose key carried no campaign are grouped under an empty id.
func (d *Database) CampaignSummaries(limit int) ([]CampaignSummary, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	var results []CampaignSummary
	query := d.gorm.Table("evaluations").
		Select("campaign_id, COUNT(*) AS total, "+
			"SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS complete, "+
			"SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed", StatusComplete, StatusFailed).
		Group("campaign_id").
		Order("total DESC, campaign_id ASC").
		Limit(limit)

	if err := query.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("campaign summaries: %w", err)
	}
	return results, nil
}
