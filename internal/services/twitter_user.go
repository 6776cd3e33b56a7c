package services

import (
	"context"
	"errors"

	"github.com/longtails/freemasons/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrEmptyTwitterIdentifier = errors.New("twitter identifier is required")

// MemberProfile is the full field set the roster path writes for a listed
// member.
type MemberProfile struct {
	InspectIdentifier string
	Name              string
	Username          string
	PfpURL            string
	Token             string
}

// TwitterUserStore resolves Twitter accounts to their single stored record.
// Both upsert paths are safe to call concurrently for the same identifier.
type TwitterUserStore struct {
	db *gorm.DB
}

func NewTwitterUserStore(db *gorm.DB) *TwitterUserStore {
	return &TwitterUserStore{db: db}
}

// Upsert records an account seen as a follower or followed account. An
// existing record is written only when its name or username changed; the
// other fields are left alone.
func (s *TwitterUserStore) Upsert(ctx context.Context, twitterIdentifier, name, username string) (*models.TwitterUser, bool, error) {
	user, created, err := s.getOrCreate(ctx, &models.TwitterUser{
		TwitterIdentifier: twitterIdentifier,
		Name:              name,
		Username:          username,
	})
	if err != nil || created {
		return user, created, err
	}

	if user.Name == name && user.Username == username {
		return user, false, nil
	}
	err = s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"name":     name,
		"username": username,
	}).Error
	if err != nil {
		return nil, false, err
	}
	user.Name, user.Username = name, username
	return user, false, nil
}

// UpsertMember records an account listed on a project roster. Every profile
// field is overwritten, changed or not.
func (s *TwitterUserStore) UpsertMember(ctx context.Context, twitterIdentifier string, p MemberProfile) (*models.TwitterUser, bool, error) {
	user, created, err := s.getOrCreate(ctx, &models.TwitterUser{
		TwitterIdentifier: twitterIdentifier,
		InspectIdentifier: p.InspectIdentifier,
		Name:              p.Name,
		Username:          p.Username,
		PfpURL:            p.PfpURL,
		Token:             p.Token,
	})
	if err != nil || created {
		return user, created, err
	}

	err = s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"inspect_identifier": p.InspectIdentifier,
		"name":               p.Name,
		"username":           p.Username,
		"pfp_url":            p.PfpURL,
		"token":              p.Token,
	}).Error
	if err != nil {
		return nil, false, err
	}
	user.InspectIdentifier, user.Name, user.Username = p.InspectIdentifier, p.Name, p.Username
	user.PfpURL, user.Token = p.PfpURL, p.Token
	return user, false, nil
}

// Get returns the stored record for twitterIdentifier.
func (s *TwitterUserStore) Get(ctx context.Context, twitterIdentifier string) (*models.TwitterUser, error) {
	var user models.TwitterUser
	if err := s.db.WithContext(ctx).Where("twitter_identifier = ?", twitterIdentifier).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// getOrCreate inserts candidate unless its identifier exists. The unique
// index decides the race, so concurrent callers always converge on one row.
func (s *TwitterUserStore) getOrCreate(ctx context.Context, candidate *models.TwitterUser) (*models.TwitterUser, bool, error) {
	if candidate.TwitterIdentifier == "" {
		return nil, false, ErrEmptyTwitterIdentifier
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "twitter_identifier"}},
			DoNothing: true,
		}).
		Create(candidate)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return candidate, true, nil
	}

	existing, err := s.Get(ctx, candidate.TwitterIdentifier)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
