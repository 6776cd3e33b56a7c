package services

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/longtails/freemasons/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultLockTTL = 30 * time.Minute

// SyncLocker hands out per-entity leases in scheduler_locks so two workers,
// in this process or another, never sync the same project or member at once.
type SyncLocker struct {
	db  *gorm.DB
	ttl time.Duration
	now clock
}

// Lease is one acquisition of a sync lock. Its token is unique to the
// acquisition, so a holder whose lease expired cannot renew or release the
// lease of whoever took it over.
type Lease struct {
	Kind     string
	EntityID uint
	token    string
}

func (l *Lease) key() string {
	return strconv.FormatUint(uint64(l.EntityID), 10)
}

func NewSyncLocker(db *gorm.DB, ttl time.Duration) *SyncLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &SyncLocker{
		db:  db,
		ttl: ttl,
		now: time.Now,
	}
}

// TTL is how long a lease lives without renewal.
func (l *SyncLocker) TTL() time.Duration {
	return l.ttl
}

// Acquire takes the lease for kind/id. It returns nil without error when
// someone else holds a live lease. An expired lease is taken over.
func (l *SyncLocker) Acquire(ctx context.Context, kind string, id uint) (*Lease, error) {
	lease := &Lease{Kind: kind, EntityID: id, token: uuid.NewString()}
	now := l.now()
	row := models.SchedulerLock{
		LockName:  kind,
		LockKey:   lease.key(),
		LockedBy:  lease.token,
		LockedAt:  now,
		ExpiresAt: now.Add(l.ttl),
	}

	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lock_name"}, {Name: "lock_key"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 1 {
		return lease, nil
	}

	stolen := l.db.WithContext(ctx).Model(&models.SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ? AND expires_at < ?", kind, lease.key(), now).
		Updates(map[string]interface{}{
			"locked_by":  lease.token,
			"locked_at":  now,
			"expires_at": now.Add(l.ttl),
		})
	if stolen.Error != nil {
		return nil, stolen.Error
	}
	if stolen.RowsAffected != 1 {
		return nil, nil
	}
	return lease, nil
}

// Renew pushes the lease's expiry a full TTL past now. It reports false when
// the lease is no longer held by this acquisition.
func (l *SyncLocker) Renew(ctx context.Context, lease *Lease) (bool, error) {
	result := l.db.WithContext(ctx).Model(&models.SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ? AND locked_by = ?", lease.Kind, lease.key(), lease.token).
		Update("expires_at", l.now().Add(l.ttl))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Release drops the lease if this acquisition still holds it.
func (l *SyncLocker) Release(ctx context.Context, lease *Lease) error {
	return l.db.WithContext(ctx).
		Where("lock_name = ? AND lock_key = ? AND locked_by = ?", lease.Kind, lease.key(), lease.token).
		Delete(&models.SchedulerLock{}).Error
}
