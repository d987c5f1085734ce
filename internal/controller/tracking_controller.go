package controller

import (
	"course_video_backend/internal/service"
	"course_video_backend/internal/util"
	"course_video_backend/pkg/tracking"
	"errors"

	"github.com/gin-gonic/gin"
)

type TrackingController struct {
	IngestService   *service.IngestService
	SessionService  *service.SessionService
	ProgressService *service.ProgressService
	ViewService     *service.ViewService
}

func NewTrackingController(
	ingestService *service.IngestService,
	sessionService *service.SessionService,
	progressService *service.ProgressService,
	viewService *service.ViewService,
) *TrackingController {
	return &TrackingController{
		IngestService:   ingestService,
		SessionService:  sessionService,
		ProgressService: progressService,
		ViewService:     viewService,
	}
}

type startSessionRequest struct {
	LessonID uint `json:"lessonId" binding:"required"`
}

type startSessionResponse struct {
	SessionToken string `json:"sessionToken"`
}

// @Summary 开启观看会话
// @Description 为当前用户和指定课时签发追踪会话令牌，后续事件批次都携带该令牌
// @Tags 观看追踪
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param session body startSessionRequest true "课时ID"
// @Success 201 {object} util.Response
// @Router /api/tracking/sessions [post]
func (c *TrackingController) StartSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req startSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	token, err := c.SessionService.Start(ctx.Request.Context(), user.UserID, req.LessonID)
	if err != nil {
		if errors.Is(err, util.ErrLessonNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, startSessionResponse{SessionToken: token})
}

// @Summary 上报播放事件批次
// @Description 接收一批有序播放事件并原子应用到进度记录；空事件批次即心跳；重复批次幂等吸收
// @Tags 观看追踪
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param batch body tracking.Batch true "事件批次"
// @Success 202 {object} util.Response
// @Router /api/tracking/events [post]
func (c *TrackingController) IngestBatch(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var batch tracking.Batch
	if err := ctx.ShouldBindJSON(&batch); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.IngestService.Ingest(ctx.Request.Context(), user.UserID, batch)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSessionMismatch):
			util.Error(ctx, 403, "Session does not belong to caller")
		case errors.Is(err, util.ErrValidation):
			util.BadRequest(ctx, err.Error())
		default:
			// 整批失败，客户端按原序号重试
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Accepted(ctx, gin.H{
		"applied":  result.Applied,
		"progress": result.Progress,
	})
}

// @Summary 查询观看进度
// @Description 查询 (用户, 课时) 的进度记录；本人可查自己，管理员与组织管理员按角色范围放行
// @Tags 观看追踪
// @Produce json
// @Security BearerAuth
// @Param lessonId path int true "课时ID"
// @Param userId query int false "目标用户ID（默认本人）"
// @Success 200 {object} util.Response
// @Router /api/tracking/progress/{lessonId} [get]
func (c *TrackingController) GetProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	lessonID := util.MustParseUint(ctx.Param("lessonId"))
	if lessonID == 0 {
		util.BadRequest(ctx, "Invalid lesson ID")
		return
	}

	targetID := user.UserID
	if raw := ctx.Query("userId"); raw != "" {
		id, ok := util.ParseUintQuery(raw)
		if !ok {
			util.BadRequest(ctx, "Invalid user ID")
			return
		}
		targetID = id
	}

	rec, err := c.ProgressService.GetProgress(ctx.Request.Context(), user, targetID, lessonID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrProgressNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrUserNotFound):
			util.NotFound(ctx)
		default:
			// 读取失败返回明确的不可用状态，而不是陈旧或零值进度
			util.Unavailable(ctx)
		}
		return
	}

	util.Success(ctx, rec)
}

// @Summary 查询本人的已观看标记
// @Description 返回当前用户的「已观看」标记列表，按时间升序
// @Tags 观看追踪
// @Produce json
// @Security BearerAuth
// @Param lessonId query int false "课时ID过滤"
// @Success 200 {object} util.Response
// @Router /api/tracking/watched [get]
func (c *TrackingController) ListWatched(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	lessonID, ok := util.ParseUintQuery(ctx.Query("lessonId"))
	if !ok {
		util.BadRequest(ctx, "Invalid lesson ID")
		return
	}

	markers, err := c.ViewService.ListViews(ctx.Request.Context(), user.UserID, lessonID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, markers)
}
