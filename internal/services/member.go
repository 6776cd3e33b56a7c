package services

import (
	"context"
	"time"

	"github.com/longtails/freemasons/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MemberService struct {
	db *gorm.DB
}

func NewMemberService(db *gorm.DB) *MemberService {
	return &MemberService{db: db}
}

type MemberListRequest struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Username  string `form:"username"`
	ProjectID *uint  `form:"project_id"`
	Stale     bool   `form:"stale"`
}

type MemberListResponse struct {
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Items    []models.Member `json:"items"`
}

// MemberDetail is a member together with the size of its current snapshot.
type MemberDetail struct {
	models.Member
	FollowerCount  int64 `json:"follower_count"`
	FollowingCount int64 `json:"following_count"`
	NeedsSync      bool  `json:"needs_sync"`
}

func (s *MemberService) List(req *MemberListRequest) (*MemberListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.Member{})
	if req.Username != "" {
		query = query.Joins("JOIN twitter_users ON twitter_users.id = members.twitter_user_id").
			Where("twitter_users.username LIKE ?", "%"+req.Username+"%")
	}
	if req.ProjectID != nil {
		query = query.Where("members.id IN (?)",
			s.db.Table("project_members").Select("member_id").Where("project_id = ?", *req.ProjectID))
	}
	if req.Stale {
		query = query.Where("members.last_sync_at IS NULL OR members.last_sync_at < ?", staleCutoff())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var members []models.Member
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("Twitter").Offset(offset).Limit(req.PageSize).Order("members.id ASC").Find(&members).Error; err != nil {
		return nil, err
	}

	return &MemberListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    members,
	}, nil
}

func (s *MemberService) GetByID(id uint) (*models.Member, error) {
	var member models.Member
	if err := s.db.Preload("Twitter").First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *MemberService) Detail(id uint) (*MemberDetail, error) {
	member, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	detail := &MemberDetail{Member: *member, NeedsSync: NeedsSync(member.LastSyncAt)}
	if err := s.db.Model(&models.MemberFollower{}).Where("member_id = ?", id).Count(&detail.FollowerCount).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.MemberFollowing{}).Where("member_id = ?", id).Count(&detail.FollowingCount).Error; err != nil {
		return nil, err
	}
	return detail, nil
}

// StaleTrackedIDs returns members on any project roster that are due for a
// sync, oldest first.
func (s *MemberService) StaleTrackedIDs(limit int) ([]uint, error) {
	var ids []uint
	query := s.db.Model(&models.Member{}).
		Where("id IN (?)", s.db.Table("project_members").Select("member_id")).
		Where("last_sync_at IS NULL OR last_sync_at < ?", staleCutoff()).
		Order("last_sync_at IS NOT NULL, last_sync_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// EnsureMember returns the member for twitterUserID, creating it if needed.
// The unique index on twitter_user_id keeps it to one member per account.
func EnsureMember(ctx context.Context, db *gorm.DB, twitterUserID uint) (*models.Member, bool, error) {
	candidate := models.Member{TwitterUserID: twitterUserID}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "twitter_user_id"}},
			DoNothing: true,
		}).
		Create(&candidate)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return &candidate, true, nil
	}

	var existing models.Member
	if err := db.WithContext(ctx).Where("twitter_user_id = ?", twitterUserID).First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func staleCutoff() time.Time {
	return time.Now().Add(-RefreshInterval)
}
