package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/longtails/freemasons/internal/metrics"
	"github.com/longtails/freemasons/internal/models"
	"github.com/longtails/freemasons/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultRosterLimit is how many listed members a project roster keeps.
const DefaultRosterLimit = 100

// ProjectSync rebuilds a project's roster from the member listing. It only
// establishes identity and membership; follower graphs are MemberSync's job.
type ProjectSync struct {
	db          *gorm.DB
	users       *TwitterUserStore
	listing     ListingClient
	twitter     TwitterClient
	rosterLimit int
	now         clock
	log         zerolog.Logger
}

func NewProjectSync(db *gorm.DB, listing ListingClient, tw TwitterClient, rosterLimit int) *ProjectSync {
	if rosterLimit <= 0 {
		rosterLimit = DefaultRosterLimit
	}
	return &ProjectSync{
		db:          db,
		users:       NewTwitterUserStore(db),
		listing:     listing,
		twitter:     tw,
		rosterLimit: rosterLimit,
		now:         time.Now,
		log:         logger.Component("project_sync"),
	}
}

// Sync replaces the project's roster with the top listed members, in listing
// order. A non-success listing yields status 500 and changes nothing. Any
// error while resolving members aborts before the roster is touched.
func (s *ProjectSync) Sync(ctx context.Context, project *models.Project) (res *SyncResult, err error) {
	start := time.Now()
	defer func() {
		status := 0
		if res != nil {
			status = res.Status
		}
		metrics.ObserveSync(SyncKindProject, start, status, err)
	}()

	entry := SyncEntry{Module: "project_sync", Action: "sync", EntityType: SyncKindProject, EntityID: project.ID}

	listing, err := s.listing.ListMembers(ctx, project.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", project.ContractAddress, err)
	}
	if listing.Status != http.StatusOK {
		s.log.Warn().
			Uint("project_id", project.ID).
			Int("listing_status", listing.Status).
			Msg("member listing failed, roster left as is")
		entry.Status = http.StatusInternalServerError
		LogWarning(entry, fmt.Sprintf("member listing returned %d", listing.Status), nil)
		return &SyncResult{Status: http.StatusInternalServerError}, nil
	}

	listed := listing.Members
	if len(listed) > s.rosterLimit {
		listed = listed[:s.rosterLimit]
	}

	usernames := make([]string, len(listed))
	for i, m := range listed {
		usernames[i] = m.Username
	}

	memberIDs := make([]uint, 0, len(listed))
	if len(usernames) > 0 {
		resolved, err := s.twitter.GetUsernameIDs(ctx, usernames)
		if err != nil {
			return nil, fmt.Errorf("resolve roster usernames: %w", err)
		}
		if len(resolved) != len(usernames) {
			return nil, fmt.Errorf("resolve roster usernames: got %d ids for %d names", len(resolved), len(usernames))
		}

		for i, lm := range listed {
			user, _, err := s.users.UpsertMember(ctx, resolved[i].ID, MemberProfile{
				InspectIdentifier: lm.ID,
				Name:              lm.Name,
				Username:          lm.Username,
				PfpURL:            lm.PfpURL,
				Token:             lm.Token,
			})
			if err != nil {
				return nil, fmt.Errorf("upsert roster account @%s: %w", lm.Username, err)
			}
			member, _, err := EnsureMember(ctx, s.db, user.ID)
			if err != nil {
				return nil, fmt.Errorf("ensure member for @%s: %w", lm.Username, err)
			}
			memberIDs = append(memberIDs, member.ID)
		}
	}

	now := s.now()
	var diff models.EdgeDiff
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if diff, err = models.ReplaceProjectMembers(tx, project.ID, memberIDs); err != nil {
			return err
		}
		return tx.Model(project).Update("last_sync_at", now).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store roster of project %d: %w", project.ID, err)
	}
	project.LastSyncAt = &now

	metrics.ObserveEdges("roster", diff.Added, diff.Removed)

	s.log.Info().
		Uint("project_id", project.ID).
		Str("contract", project.ContractAddress).
		Int("listed", len(listing.Members)).
		Int("roster", len(memberIDs)).
		Msg("project synced")
	entry.Status = http.StatusOK
	LogInfo(entry, fmt.Sprintf("roster synced with %d members", len(memberIDs)), diff)

	return &SyncResult{Status: http.StatusOK}, nil
}
