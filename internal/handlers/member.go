package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/longtails/freemasons/internal/services"
	"github.com/longtails/freemasons/pkg/response"
	"gorm.io/gorm"
)

type MemberHandler struct {
	memberService *services.MemberService
	runner        *services.SyncRunner
}

func NewMemberHandler(db *gorm.DB, runner *services.SyncRunner) *MemberHandler {
	return &MemberHandler{
		memberService: services.NewMemberService(db),
		runner:        runner,
	}
}

// List returns members, optionally filtered by roster or staleness
// GET /api/members
func (h *MemberHandler) List(c *gin.Context) {
	var req services.MemberListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.memberService.List(&req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, resp)
}

// GetByID returns a member with its snapshot sizes
// GET /api/members/:id
func (h *MemberHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "invalid member id")
	if !ok {
		return
	}

	detail, err := h.memberService.Detail(id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, detail)
}

// Sync refreshes the member's wallet and social graph now
// POST /api/members/:id/sync
func (h *MemberHandler) Sync(c *gin.Context) {
	id, ok := parseID(c, "invalid member id")
	if !ok {
		return
	}

	res, err := h.runner.RunMember(c.Request.Context(), id)
	if err != nil {
		syncError(c, err, "member not found")
		return
	}

	response.Success(c, res)
}
