package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/longtails/freemasons/internal/clients/twitter"
	"github.com/longtails/freemasons/internal/metrics"
	"github.com/longtails/freemasons/internal/models"
	"github.com/longtails/freemasons/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// MemberSync refreshes one member's wallet owner and follower graph.
type MemberSync struct {
	db      *gorm.DB
	users   *TwitterUserStore
	chain   ChainClient
	twitter TwitterClient
	now     clock
	log     zerolog.Logger
}

func NewMemberSync(db *gorm.DB, chain ChainClient, tw TwitterClient) *MemberSync {
	return &MemberSync{
		db:      db,
		users:   NewTwitterUserStore(db),
		chain:   chain,
		twitter: tw,
		now:     time.Now,
		log:     logger.Component("member_sync"),
	}
}

// Sync resolves the member's wallet, fetches followers and following, and
// swaps both snapshots in a single transaction. A failed owner lookup leaves
// the wallet empty and the sync carries on; every other failure is returned
// and the stored snapshot stays as it was.
func (s *MemberSync) Sync(ctx context.Context, member *models.Member) (res *SyncResult, err error) {
	start := time.Now()
	defer func() {
		status := 0
		if res != nil {
			status = res.Status
		}
		metrics.ObserveSync(SyncKindMember, start, status, err)
	}()

	account := member.Twitter
	if account == nil {
		account = &models.TwitterUser{}
		if err := s.db.WithContext(ctx).First(account, member.TwitterUserID).Error; err != nil {
			return nil, fmt.Errorf("load twitter account of member %d: %w", member.ID, err)
		}
		member.Twitter = account
	}

	wallet, err := s.resolveWallet(ctx, member.ID, account.Token)
	if err != nil {
		return nil, err
	}

	followers, err := s.twitter.GetFollowers(ctx, account.TwitterIdentifier)
	if err != nil {
		return nil, fmt.Errorf("fetch followers of %s: %w", account.TwitterIdentifier, err)
	}
	following, err := s.twitter.GetFollowing(ctx, account.TwitterIdentifier)
	if err != nil {
		return nil, fmt.Errorf("fetch following of %s: %w", account.TwitterIdentifier, err)
	}

	followerIDs, err := s.upsertProfiles(ctx, followers)
	if err != nil {
		return nil, err
	}
	followingIDs, err := s.upsertProfiles(ctx, following)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var followerDiff, followingDiff models.EdgeDiff
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if followerDiff, err = models.ReplaceFollowers(tx, member.ID, followerIDs); err != nil {
			return err
		}
		if followingDiff, err = models.ReplaceFollowing(tx, member.ID, followingIDs); err != nil {
			return err
		}
		return tx.Model(member).Updates(map[string]interface{}{
			"wallet_address": wallet,
			"last_sync_at":   now,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store snapshot of member %d: %w", member.ID, err)
	}
	member.WalletAddress = wallet
	member.LastSyncAt = &now

	metrics.ObserveEdges("followers", followerDiff.Added, followerDiff.Removed)
	metrics.ObserveEdges("following", followingDiff.Added, followingDiff.Removed)

	s.log.Info().
		Uint("member_id", member.ID).
		Str("username", account.Username).
		Int("followers", len(followerIDs)).
		Int("following", len(followingIDs)).
		Msg("member synced")
	LogInfo(SyncEntry{
		Module:     "member_sync",
		Action:     "sync",
		EntityType: SyncKindMember,
		EntityID:   member.ID,
		Status:     http.StatusOK,
	}, fmt.Sprintf("synced @%s", account.Username), map[string]models.EdgeDiff{
		"followers": followerDiff,
		"following": followingDiff,
	})

	return &SyncResult{Status: http.StatusOK}, nil
}

// resolveWallet returns the token's current owner, or "" when the token is
// unusable or the lookup did not produce an owner.
func (s *MemberSync) resolveWallet(ctx context.Context, memberID uint, token string) (string, error) {
	contract, tokenID, ok := ParseToken(token)
	if !ok {
		s.walletMiss(memberID, 0, fmt.Sprintf("unusable token %q", token))
		return "", nil
	}

	result, err := s.chain.GetOwner(ctx, contract, tokenID)
	if err != nil {
		return "", fmt.Errorf("owner lookup %s/%s: %w", contract, tokenID, err)
	}
	if result.Status != http.StatusOK {
		s.walletMiss(memberID, result.Status, "owner lookup returned non-success status")
		return "", nil
	}
	if !result.Found {
		s.walletMiss(memberID, result.Status, "owner lookup returned no owner")
		return "", nil
	}
	return result.Owner, nil
}

func (s *MemberSync) walletMiss(memberID uint, status int, reason string) {
	metrics.WalletLookupFailures.Inc()
	s.log.Warn().Uint("member_id", memberID).Int("status", status).Msg(reason)
	LogWarning(SyncEntry{
		Module:     "member_sync",
		Action:     "wallet_lookup",
		EntityType: SyncKindMember,
		EntityID:   memberID,
		Status:     status,
	}, reason, nil)
}

func (s *MemberSync) upsertProfiles(ctx context.Context, batch []twitter.Profile) ([]uint, error) {
	ids := make([]uint, 0, len(batch))
	for _, p := range batch {
		user, _, err := s.users.Upsert(ctx, p.ID, p.Name, p.Username)
		if err != nil {
			return nil, fmt.Errorf("upsert twitter user %s: %w", p.ID, err)
		}
		ids = append(ids, user.ID)
	}
	return ids, nil
}

// ParseToken splits "scheme:contract:tokenId". The scheme is ignored; the
// contract and token id are returned verbatim.
func ParseToken(token string) (contract, tokenID string, ok bool) {
	parts := strings.Split(token, ":")
	if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
