package controller

import (
	"course_video_backend/internal/service"
	"course_video_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	AdminService *service.AdminService
}

func NewAdminController(adminService *service.AdminService) *AdminController {
	return &AdminController{AdminService: adminService}
}

// @Summary 学生观看情况聚合
// @Description 按学生分组返回已观看课时（含标题与观看时间）。admin 全量；org_admin 强制限定本组织，指定其它组织直接拒绝
// @Tags 管理端
// @Produce json
// @Security BearerAuth
// @Param userId query int false "用户ID过滤"
// @Param organizationId query int false "组织ID过滤"
// @Success 200 {object} util.Response
// @Router /api/admin/tracking/progress [get]
func (c *AdminController) ListStudentProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	userID, ok := util.ParseUintQuery(ctx.Query("userId"))
	if !ok {
		util.BadRequest(ctx, "Invalid user ID")
		return
	}
	orgID, ok := util.ParseUintQuery(ctx.Query("organizationId"))
	if !ok {
		util.BadRequest(ctx, "Invalid organization ID")
		return
	}

	summaries, err := c.AdminService.ListProgress(ctx.Request.Context(), user, service.AdminFilter{
		UserID:         userID,
		OrganizationID: orgID,
	})
	if err != nil {
		switch {
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrUserNotFound):
			util.NotFound(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, summaries)
}
