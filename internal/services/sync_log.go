package services

import (
	"encoding/json"
	"time"

	"github.com/longtails/freemasons/internal/models"
	"github.com/longtails/freemasons/pkg/logger"
	"gorm.io/gorm"
)

var auditDB *gorm.DB

// InitSyncLogger points the audit helpers at db. Before it is called they
// are no-ops.
func InitSyncLogger(db *gorm.DB) {
	auditDB = db
}

// SyncEntry identifies what an audit record is about.
type SyncEntry struct {
	Module     string
	Action     string
	EntityType string
	EntityID   uint
	Status     int
}

func LogInfo(e SyncEntry, message string, extra interface{}) {
	writeLog("info", e, message, extra)
}

func LogWarning(e SyncEntry, message string, extra interface{}) {
	writeLog("warning", e, message, extra)
}

func LogError(e SyncEntry, message string, extra interface{}) {
	writeLog("error", e, message, extra)
}

func writeLog(level string, e SyncEntry, message string, extra interface{}) {
	if auditDB == nil {
		return
	}

	var extraStr string
	if extra != nil {
		if b, err := json.Marshal(extra); err == nil {
			extraStr = string(b)
		}
	}

	record := &models.SyncLog{
		Level:      level,
		Module:     e.Module,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Status:     e.Status,
		Message:    message,
		Extra:      extraStr,
		CreatedAt:  time.Now(),
	}
	if err := auditDB.Create(record).Error; err != nil {
		logger.Warn().Err(err).Str("module", e.Module).Msg("write sync log")
	}
}

type SyncLogService struct {
	db *gorm.DB
}

func NewSyncLogService(db *gorm.DB) *SyncLogService {
	return &SyncLogService{db: db}
}

type SyncLogListRequest struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Level      string `form:"level"`
	Module     string `form:"module"`
	EntityType string `form:"entity_type"`
	EntityID   uint   `form:"entity_id"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
	Search     string `form:"search"`
}

type SyncLogListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.SyncLog `json:"items"`
}

func (s *SyncLogService) List(req *SyncLogListRequest) (*SyncLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	var logs []models.SyncLog
	var total int64

	query := s.db.Model(&models.SyncLog{})

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.EntityType != "" {
		query = query.Where("entity_type = ?", req.EntityType)
	}
	if req.EntityID != 0 {
		query = query.Where("entity_id = ?", req.EntityID)
	}
	if req.StartDate != "" {
		query = query.Where("created_at >= ?", req.StartDate)
	}
	if req.EndDate != "" {
		query = query.Where("created_at <= ?", req.EndDate+" 23:59:59")
	}
	if req.Search != "" {
		query = query.Where("message LIKE ?", "%"+req.Search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &SyncLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

func (s *SyncLogService) GetModules() ([]string, error) {
	var modules []string
	if err := s.db.Model(&models.SyncLog{}).Distinct("module").Order("module").Pluck("module", &modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// CleanupOldLogs deletes records older than retentionDays and returns how
// many went.
func (s *SyncLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.SyncLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// StartLogCleanupScheduler prunes the audit table now and then once a day
// until stop is closed.
func StartLogCleanupScheduler(db *gorm.DB, retentionDays int, stop <-chan struct{}) {
	go func() {
		service := NewSyncLogService(db)
		runCleanup(service, retentionDays)

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runCleanup(service, retentionDays)
			case <-stop:
				return
			}
		}
	}()
}

func runCleanup(service *SyncLogService, retentionDays int) {
	if retentionDays <= 0 {
		logger.Infof("[SyncLog] Log cleanup disabled (retention_days <= 0)")
		return
	}

	deleted, err := service.CleanupOldLogs(retentionDays)
	if err != nil {
		logger.Errorf("[SyncLog] Failed to cleanup old logs: %v", err)
		return
	}
	if deleted > 0 {
		logger.Infof("[SyncLog] Cleaned up %d logs older than %d days", deleted, retentionDays)
	}
}
