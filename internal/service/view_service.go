package service

import (
	"context"
	"course_video_backend/internal/model"
)

// WatchedStore 「已观看」标记的持久化访问。
type WatchedStore interface {
	CreateIfAbsent(ctx context.Context, userID, lessonID uint) (*model.WatchedLesson, error)
	ListByUser(ctx context.Context, userID uint, lessonID uint) ([]model.WatchedLesson, error)
}

// ViewService 「已观看」标记的幂等登记，独立于细粒度进度百分比，
// 是管理端「这个学生看过这节课吗」的权威答案。
type ViewService struct {
	Store WatchedStore
}

func NewViewService(store WatchedStore) *ViewService {
	return &ViewService{Store: store}
}

// RegisterView 幂等登记：已存在时原样返回现存标记。并发双写时由唯一索引裁决，
// 输掉的一方在存储层回读而非报错。
func (s *ViewService) RegisterView(ctx context.Context, userID, lessonID uint) (*model.WatchedLesson, error) {
	return s.Store.CreateIfAbsent(ctx, userID, lessonID)
}

// ListViews 自查接口：lessonID 为 0 时返回该用户全部标记，按时间升序。
func (s *ViewService) ListViews(ctx context.Context, userID uint, lessonID uint) ([]model.WatchedLesson, error) {
	return s.Store.ListByUser(ctx, userID, lessonID)
}
