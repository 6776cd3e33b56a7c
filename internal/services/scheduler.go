package services

import (
	"fmt"

	"github.com/longtails/freemasons/pkg/logger"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// membersPerTick caps how many stale members one tick enqueues.
const membersPerTick = 500

// SyncScheduler periodically enqueues every project and tracked member whose
// snapshot has gone stale. It never syncs directly.
type SyncScheduler struct {
	projects *ProjectService
	members  *MemberService
	queue    TaskQueue
	schedule string
	cron     *cron.Cron
	log      zerolog.Logger
}

func NewSyncScheduler(projects *ProjectService, members *MemberService, queue TaskQueue, schedule string) *SyncScheduler {
	if schedule == "" {
		schedule = "@every 30m"
	}
	return &SyncScheduler{
		projects: projects,
		members:  members,
		queue:    queue,
		schedule: schedule,
		log:      logger.Component("scheduler"),
	}
}

// Start registers the tick and starts cron. A tick still running when the
// next one fires is skipped.
func (s *SyncScheduler) Start() error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("sync scheduler started")
	return nil
}

func (s *SyncScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *SyncScheduler) tick() {
	projects, members, err := s.Tick()
	if err != nil {
		s.log.Error().Err(err).Msg("scheduler tick")
		return
	}
	if projects+members > 0 {
		s.log.Info().Int("projects", projects).Int("members", members).Msg("stale syncs enqueued")
	}
}

// Tick enqueues stale projects, then stale members of any roster, and
// reports how many of each it queued.
func (s *SyncScheduler) Tick() (int, int, error) {
	projectIDs, err := s.projects.StaleIDs()
	if err != nil {
		return 0, 0, fmt.Errorf("list stale projects: %w", err)
	}
	projects := s.enqueue(SyncKindProject, projectIDs)

	memberIDs, err := s.members.StaleTrackedIDs(membersPerTick)
	if err != nil {
		return projects, 0, fmt.Errorf("list stale members: %w", err)
	}
	members := s.enqueue(SyncKindMember, memberIDs)

	if projects+members > 0 {
		LogInfo(SyncEntry{Module: "scheduler", Action: "enqueue"},
			fmt.Sprintf("enqueued %d projects and %d members", projects, members), nil)
	}
	return projects, members, nil
}

func (s *SyncScheduler) enqueue(kind string, ids []uint) int {
	queued := 0
	for _, id := range ids {
		if err := s.queue.Enqueue(&SyncTask{Kind: kind, EntityID: id, Reason: "scheduled"}); err != nil {
			s.log.Warn().Err(err).Str("kind", kind).Uint("entity_id", id).Msg("enqueue sync")
			continue
		}
		queued++
	}
	return queued
}
