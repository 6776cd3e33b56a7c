package services

import (
	"context"
	"time"

	"github.com/longtails/freemasons/internal/clients/inspect"
	"github.com/longtails/freemasons/internal/clients/moralis"
	"github.com/longtails/freemasons/internal/clients/twitter"
)

const (
	SyncKindProject = "project"
	SyncKindMember  = "member"
)

// ChainClient resolves the current owner of an NFT.
type ChainClient interface {
	GetOwner(ctx context.Context, contractAddress, tokenID string) (*moralis.OwnerResult, error)
}

// ListingClient returns a collection's member listing.
type ListingClient interface {
	ListMembers(ctx context.Context, contractAddress string) (*inspect.MemberListing, error)
}

// TwitterClient reads the follower graph. GetUsernameIDs must return a slice
// aligned with its input.
type TwitterClient interface {
	GetFollowers(ctx context.Context, userID string) ([]twitter.Profile, error)
	GetFollowing(ctx context.Context, userID string) ([]twitter.Profile, error)
	GetUsernameIDs(ctx context.Context, usernames []string) ([]twitter.Profile, error)
}

// SyncResult is what a sync reports to its caller. Status follows HTTP
// conventions: 200 on success, 500 when the remote listing failed.
type SyncResult struct {
	Status int `json:"status"`
}

type clock func() time.Time
