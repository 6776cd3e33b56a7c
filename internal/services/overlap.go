package services

import (
	"context"

	"gorm.io/gorm"
)

// OverlapEntry counts how many roster members share one account in a
// relation.
type OverlapEntry struct {
	Username     string `json:"username"`
	OverlapCount int64  `json:"overlap_count"`
}

// OverlapReport aggregates the stored follower graph of a project roster.
// It never writes.
type OverlapReport struct {
	db *gorm.DB
}

func NewOverlapReport(db *gorm.DB) *OverlapReport {
	return &OverlapReport{db: db}
}

// MemberFollowerSummary counts, for every account following at least one
// roster member, how many roster members it follows. Rows are grouped by
// username, highest count first, ties by username ascending.
func (r *OverlapReport) MemberFollowerSummary(ctx context.Context, projectID uint, limit int) ([]OverlapEntry, error) {
	return r.summary(ctx, "member_followers", projectID, limit)
}

// MemberFollowingSummary counts, for every account followed by at least one
// roster member, how many roster members follow it.
func (r *OverlapReport) MemberFollowingSummary(ctx context.Context, projectID uint, limit int) ([]OverlapEntry, error) {
	return r.summary(ctx, "member_following", projectID, limit)
}

func (r *OverlapReport) summary(ctx context.Context, edges string, projectID uint, limit int) ([]OverlapEntry, error) {
	query := r.db.WithContext(ctx).
		Table(edges+" AS e").
		Select("tu.username AS username, COUNT(*) AS overlap_count").
		Joins("JOIN twitter_users tu ON tu.id = e.twitter_user_id").
		Joins("JOIN project_members pm ON pm.member_id = e.member_id").
		Where("pm.project_id = ?", projectID).
		Group("tu.username").
		Order("overlap_count DESC, tu.username ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	entries := []OverlapEntry{}
	if err := query.Scan(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
