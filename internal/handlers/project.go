package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/longtails/freemasons/internal/middleware"
	"github.com/longtails/freemasons/internal/services"
	"github.com/longtails/freemasons/pkg/logger"
	"github.com/longtails/freemasons/pkg/response"
	"gorm.io/gorm"
)

type ProjectHandler struct {
	projectService *services.ProjectService
	report         *services.OverlapReport
	runner         *services.SyncRunner
	queue          services.TaskQueue
}

func NewProjectHandler(db *gorm.DB, runner *services.SyncRunner, queue services.TaskQueue) *ProjectHandler {
	return &ProjectHandler{
		projectService: services.NewProjectService(db),
		report:         services.NewOverlapReport(db),
		runner:         runner,
		queue:          queue,
	}
}

type summaryQuery struct {
	Relation string `form:"relation" binding:"omitempty,oneof=followers following"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// List returns paginated projects
// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	var req services.ProjectListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.projectService.List(&req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, resp)
}

// GetByID returns a project with its roster in listing order
// GET /api/projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "invalid project id")
	if !ok {
		return
	}

	project, err := h.projectService.GetWithRoster(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "project not found")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, project)
}

// Create registers a project and queues its first roster sync
// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.Create(&req)
	if err != nil {
		if errors.Is(err, services.ErrProjectExists) {
			response.Error(c, response.NewConflict(err.Error()))
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	if err := h.queue.Enqueue(&services.SyncTask{Kind: services.SyncKindProject, EntityID: project.ID, Reason: "created"}); err != nil {
		// the scheduler picks never-synced projects up on its next tick
		logger.Warn().Err(err).Uint("project_id", project.ID).Msg("enqueue first sync")
	}
	logger.Info().
		Uint("project_id", project.ID).
		Str("contract", project.ContractAddress).
		Str("operator", middleware.GetOperator(c)).
		Msg("project registered")

	response.Created(c, project)
}

// Sync runs a roster sync now and reports its status
// POST /api/projects/:id/sync
func (h *ProjectHandler) Sync(c *gin.Context) {
	id, ok := parseID(c, "invalid project id")
	if !ok {
		return
	}

	res, err := h.runner.RunProject(c.Request.Context(), id)
	if err != nil {
		syncError(c, err, "project not found")
		return
	}
	if res.Status != http.StatusOK {
		response.Error(c, response.NewUpstream(
			fmt.Sprintf("member listing unavailable (sync status %d), roster unchanged", res.Status)))
		return
	}

	response.Success(c, res)
}

// Summary returns the overlap report of the project's roster
// GET /api/projects/:id/summary?relation=followers|following
func (h *ProjectHandler) Summary(c *gin.Context) {
	id, ok := parseID(c, "invalid project id")
	if !ok {
		return
	}
	var q summaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if _, err := h.projectService.GetByID(id); err != nil {
		response.Error(c, err)
		return
	}

	var (
		entries []services.OverlapEntry
		err     error
	)
	if q.Relation == "following" {
		entries, err = h.report.MemberFollowingSummary(c.Request.Context(), id, q.Limit)
	} else {
		q.Relation = "followers"
		entries, err = h.report.MemberFollowerSummary(c.Request.Context(), id, q.Limit)
	}
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"project_id": id,
		"relation":   q.Relation,
		"items":      entries,
	})
}

func parseID(c *gin.Context, msg string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.Error(c, response.NewBadRequest(msg))
		return 0, false
	}
	return uint(id), true
}

func syncError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, services.ErrSyncInProgress):
		response.Error(c, response.NewConflict(err.Error()))
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.Error(c, response.NewNotFound(notFound))
	default:
		response.ServerError(c, err.Error())
	}
}
