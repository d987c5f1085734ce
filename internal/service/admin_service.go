package service

import (
	"context"
	"course_video_backend/internal/model"
	"course_video_backend/internal/util"
	"course_video_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// 课程目录缺条目时的占位标题，查询整体不因此失败
const placeholderTitle = "(未知课时)"

// WatchedAdminStore 管理端聚合需要的标记扫描。
type WatchedAdminStore interface {
	ListByUsers(ctx context.Context, userIDs []uint) ([]model.WatchedLesson, error)
}

// OrgDirectory 组织成员展开（外部身份系统）。
type OrgDirectory interface {
	GetByID(userID uint) (*model.User, error)
	ListIDsByOrganization(orgID uint) ([]uint, error)
}

// TitleResolver 课时标题批量解析（外部内容系统）。
type TitleResolver interface {
	GetTitles(ctx context.Context, lessonIDs []uint) (map[uint]string, error)
}

// AdminFilter 管理端查询过滤条件，零值表示不过滤。
type AdminFilter struct {
	UserID         uint
	OrganizationID uint
}

// WatchedLessonView 单条已观看课时（联表标题后的展示形态）。
type WatchedLessonView struct {
	LessonID  uint      `json:"lessonId"`
	Title     string    `json:"title"`
	WatchedAt time.Time `json:"watchedAt"`
}

// StudentWatchSummary 按学生分组的观看汇总。
type StudentWatchSummary struct {
	UserID  uint                `json:"userId"`
	Lessons []WatchedLessonView `json:"lessons"`
}

// AdminService 面向管理端的只读聚合。所有管理端读取共用这一个授权裁决点，
// 避免各查询各自裁剪范围导致的分叉。
type AdminService struct {
	Watched WatchedAdminStore
	Users   OrgDirectory
	Lessons TitleResolver
}

func NewAdminService(watched WatchedAdminStore, users OrgDirectory, lessons TitleResolver) *AdminService {
	return &AdminService{Watched: watched, Users: users, Lessons: lessons}
}

// ListProgress 角色裁剪后的全量观看视图：
// admin 不受限；org_admin 强制收窄到本组织——指定其它组织的过滤条件直接拒绝而非静默收窄；
// 其余角色一律拒绝。
func (s *AdminService) ListProgress(ctx context.Context, caller *util.Claims, filter AdminFilter) ([]StudentWatchSummary, error) {
	if caller == nil {
		return nil, util.ErrAuthenticationRequired
	}

	scope, err := s.resolveScope(caller, filter)
	if err != nil {
		return nil, err
	}

	// scope 为 nil 表示不过滤；非 nil 空切片表示范围内没有任何用户
	if scope != nil && len(scope) == 0 {
		return []StudentWatchSummary{}, nil
	}

	markers, err := s.Watched.ListByUsers(ctx, scope)
	if err != nil {
		return nil, err
	}

	lessonIDs := make([]uint, 0, len(markers))
	seen := make(map[uint]bool)
	for _, m := range markers {
		if !seen[m.LessonID] {
			seen[m.LessonID] = true
			lessonIDs = append(lessonIDs, m.LessonID)
		}
	}

	titles, err := s.Lessons.GetTitles(ctx, lessonIDs)
	if err != nil {
		// 目录不可用降级为占位标题，观看数据本身照常返回
		logger.Log.Warn("lesson catalog lookup failed, falling back to placeholder titles", zap.Error(err))
		titles = map[uint]string{}
	}

	byUser := make(map[uint]*StudentWatchSummary)
	order := make([]uint, 0)
	for _, m := range markers {
		summary, ok := byUser[m.UserID]
		if !ok {
			summary = &StudentWatchSummary{UserID: m.UserID}
			byUser[m.UserID] = summary
			order = append(order, m.UserID)
		}
		title, ok := titles[m.LessonID]
		if !ok || title == "" {
			title = placeholderTitle
		}
		summary.Lessons = append(summary.Lessons, WatchedLessonView{
			LessonID:  m.LessonID,
			Title:     title,
			WatchedAt: m.CreatedAt,
		})
	}

	out := make([]StudentWatchSummary, 0, len(order))
	for _, uid := range order {
		out = append(out, *byUser[uid])
	}
	return out, nil
}

// resolveScope 唯一的授权裁决点。返回 nil 表示不过滤（仅 admin 可达）。
func (s *AdminService) resolveScope(caller *util.Claims, filter AdminFilter) ([]uint, error) {
	switch caller.Role {
	case model.Admin:
		if filter.UserID != 0 {
			return []uint{filter.UserID}, nil
		}
		if filter.OrganizationID != 0 {
			return s.orgMembers(filter.OrganizationID)
		}
		return nil, nil

	case model.OrgAdmin:
		// 明示要求其它组织 → 拒绝，而不是悄悄收窄
		if filter.OrganizationID != 0 && filter.OrganizationID != caller.OrganizationID {
			return nil, util.ErrPermissionDenied
		}
		if filter.UserID != 0 {
			target, err := s.Users.GetByID(filter.UserID)
			if err != nil {
				return nil, err
			}
			if target.OrganizationID != caller.OrganizationID {
				return nil, util.ErrPermissionDenied
			}
			return []uint{filter.UserID}, nil
		}
		return s.orgMembers(caller.OrganizationID)

	default:
		return nil, util.ErrPermissionDenied
	}
}

// orgMembers 保证返回非 nil 切片：空组织意味着空结果，而不是退化成「不过滤」。
func (s *AdminService) orgMembers(orgID uint) ([]uint, error) {
	ids, err := s.Users.ListIDsByOrganization(orgID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint{}
	}
	return ids, nil
}
