package models

import "time"

// ProjectMember is the roster edge between a project and a member. Position
// keeps the listing order reported by the inspection service.
type ProjectMember struct {
	ProjectID uint      `gorm:"primaryKey" json:"project_id"`
	MemberID  uint      `gorm:"primaryKey;index" json:"member_id"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// MemberFollower records that TwitterUserID follows MemberID's account.
type MemberFollower struct {
	MemberID      uint      `gorm:"primaryKey" json:"member_id"`
	TwitterUserID uint      `gorm:"primaryKey;index" json:"twitter_user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// MemberFollowing records that MemberID's account follows TwitterUserID.
type MemberFollowing struct {
	MemberID      uint      `gorm:"primaryKey" json:"member_id"`
	TwitterUserID uint      `gorm:"primaryKey;index" json:"twitter_user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (ProjectMember) TableName() string   { return "project_members" }
func (MemberFollower) TableName() string  { return "member_followers" }
func (MemberFollowing) TableName() string { return "member_following" }
