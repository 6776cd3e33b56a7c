package models

import "time"

// TwitterUser is a Twitter account observed as a project member, a follower
// or a followed account. Records are shared by every relation that points at
// them and are never deleted.
type TwitterUser struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	TwitterIdentifier string    `gorm:"uniqueIndex;size:64;not null" json:"twitter_identifier"`
	InspectIdentifier string    `gorm:"size:256;index" json:"inspect_identifier"`
	Name              string    `gorm:"size:256" json:"name"`
	Username          string    `gorm:"size:256;index;not null" json:"username"`
	PfpURL            string    `gorm:"type:text" json:"pfp_url"`
	Token             string    `gorm:"size:256" json:"token"` // scheme:contract_address:token_id
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Member is a project holder whose wallet and social graph are tracked.
type Member struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	TwitterUserID uint          `gorm:"uniqueIndex;not null" json:"twitter_user_id"`
	Twitter       *TwitterUser  `gorm:"foreignKey:TwitterUserID" json:"twitter,omitempty"`
	WalletAddress string        `gorm:"size:256" json:"wallet_address"`
	Followers     []TwitterUser `gorm:"many2many:member_followers" json:"-"`
	Following     []TwitterUser `gorm:"many2many:member_following" json:"-"`
	LastSyncAt    *time.Time    `json:"last_sync_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Project is a tracked NFT collection and its current top-holder roster.
type Project struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"size:200" json:"name"`
	ContractAddress string     `gorm:"uniqueIndex;size:256;not null" json:"contract_address"`
	Members         []Member   `gorm:"many2many:project_members" json:"members,omitempty"`
	LastSyncAt      *time.Time `json:"last_sync_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (TwitterUser) TableName() string { return "twitter_users" }
func (Member) TableName() string      { return "members" }
func (Project) TableName() string     { return "projects" }
