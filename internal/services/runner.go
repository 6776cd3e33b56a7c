package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/longtails/freemasons/internal/metrics"
	"github.com/longtails/freemasons/internal/models"
	"github.com/longtails/freemasons/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var ErrSyncInProgress = errors.New("a sync of this entity is already running")

// SyncRunner loads an entity, takes its lease and runs the matching sync.
// Queue workers, the scheduler and the API all go through it.
type SyncRunner struct {
	db       *gorm.DB
	projects *ProjectSync
	members  *MemberSync
	locker   *SyncLocker
	log      zerolog.Logger
}

func NewSyncRunner(db *gorm.DB, projects *ProjectSync, members *MemberSync, locker *SyncLocker) *SyncRunner {
	return &SyncRunner{
		db:       db,
		projects: projects,
		members:  members,
		locker:   locker,
		log:      logger.Component("sync_runner"),
	}
}

// RunProject syncs one project's roster now.
func (r *SyncRunner) RunProject(ctx context.Context, projectID uint) (*SyncResult, error) {
	release, err := r.lease(ctx, SyncKindProject, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		return nil, err
	}
	return r.projects.Sync(ctx, &project)
}

// RunMember syncs one member's wallet and social graph now.
func (r *SyncRunner) RunMember(ctx context.Context, memberID uint) (*SyncResult, error) {
	release, err := r.lease(ctx, SyncKindMember, memberID)
	if err != nil {
		return nil, err
	}
	defer release()

	var member models.Member
	if err := r.db.WithContext(ctx).Preload("Twitter").First(&member, memberID).Error; err != nil {
		return nil, err
	}
	return r.members.Sync(ctx, &member)
}

// Process runs a queued task. A task whose entity is already being synced is
// dropped, since the running sync produces the same snapshot.
func (r *SyncRunner) Process(ctx context.Context, task *SyncTask) error {
	var err error
	switch task.Kind {
	case SyncKindProject:
		_, err = r.RunProject(ctx, task.EntityID)
	case SyncKindMember:
		_, err = r.RunMember(ctx, task.EntityID)
	default:
		return fmt.Errorf("unknown sync kind %q", task.Kind)
	}

	if errors.Is(err, ErrSyncInProgress) {
		metrics.SyncSkipped.WithLabelValues(task.Kind).Inc()
		r.log.Debug().Str("kind", task.Kind).Uint("entity_id", task.EntityID).Msg("sync already running, task dropped")
		return nil
	}
	if err != nil {
		r.log.Error().Err(err).Str("kind", task.Kind).Uint("entity_id", task.EntityID).Str("reason", task.Reason).Msg("sync failed")
		LogError(SyncEntry{
			Module:     task.Kind + "_sync",
			Action:     "sync",
			EntityType: task.Kind,
			EntityID:   task.EntityID,
		}, err.Error(), map[string]string{"reason": task.Reason})
	}
	return err
}

// lease takes the entity's lease and renews it every third of its TTL until
// the returned release func runs, so a sync slower than the TTL keeps it.
func (r *SyncRunner) lease(ctx context.Context, kind string, id uint) (func(), error) {
	held, err := r.locker.Acquire(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("acquire %s lease: %w", kind, err)
	}
	if held == nil {
		return nil, ErrSyncInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.locker.TTL() / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ok, err := r.locker.Renew(context.Background(), held)
				if err != nil {
					r.log.Warn().Err(err).Str("kind", kind).Uint("entity_id", id).Msg("renew lease")
					continue
				}
				if !ok {
					r.log.Warn().Str("kind", kind).Uint("entity_id", id).Msg("lease lost while syncing")
					return
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
		// the sync context may already be cancelled
		if err := r.locker.Release(context.Background(), held); err != nil {
			r.log.Warn().Err(err).Str("kind", kind).Uint("entity_id", id).Msg("release lease")
		}
	}, nil
}
