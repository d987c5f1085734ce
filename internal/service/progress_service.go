package service

import (
	"context"
	"course_video_backend/internal/model"
	"course_video_backend/internal/util"
	"course_video_backend/pkg/logger"
	"course_video_backend/pkg/monitoring"
	"course_video_backend/pkg/tracking"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ProgressStore 进度记录的持久化访问，键级串行化由实现保证。
type ProgressStore interface {
	Get(ctx context.Context, userID, lessonID uint) (*model.VideoProgress, error)
	UpdateLocked(ctx context.Context, userID, lessonID uint, fold func(*model.VideoProgress) error) (*model.VideoProgress, error)
}

// ViewRegistrar 「已观看」标记登记（幂等）。
type ViewRegistrar interface {
	RegisterView(ctx context.Context, userID, lessonID uint) (*model.WatchedLesson, error)
}

// UserDirectory 身份/角色/组织归属查询（外部身份系统）。
type UserDirectory interface {
	GetByID(userID uint) (*model.User, error)
}

const (
	// conflictRetries 键级写冲突的内部重试次数上限
	conflictRetries = 3
	// maxTrackedSessions 单条进度记录保留的会话游标数上限
	maxTrackedSessions = 16
	// sessionStateTTL 过期会话游标的清理阈值
	sessionStateTTL = 48 * time.Hour
)

// ProgressService 权威的事件折叠：把播放事件批次汇入 (用户, 课时) 的进度记录。
type ProgressService struct {
	Store     ProgressStore
	Registrar ViewRegistrar
	Users     UserDirectory

	// threshold 判定完成的百分比阈值。配置热更新协程与摄取请求并发读写，
	// 以 Float64bits 原子存取
	threshold atomic.Uint64
}

func NewProgressService(store ProgressStore, registrar ViewRegistrar, users UserDirectory, threshold float64) *ProgressService {
	s := &ProgressService{
		Store:     store,
		Registrar: registrar,
		Users:     users,
	}
	s.SetThreshold(threshold)
	return s
}

// SetThreshold 热更新完成阈值，对并发中的批次应用立即生效。
func (s *ProgressService) SetThreshold(v float64) {
	s.threshold.Store(math.Float64bits(v))
}

func (s *ProgressService) completionThreshold() float64 {
	return math.Float64frombits(s.threshold.Load())
}

// ApplyResult 单个批次的应用结果。Applied 为 false 表示重复批次被无操作吸收。
type ApplyResult struct {
	Progress *model.VideoProgress
	Applied  bool
}

// Apply 原子地把一个批次应用到进度记录：要么全部入账要么全不入账。
// 重复批次（seq 不大于该会话最近一次已应用的序号）无操作返回当前进度。
// 会话游标被 pruneSessions 清理后（超量或过期），极晚到达的重发批次不再被识别
// 为重复而会重新入账：区间并集与最大位置使重放近似幂等，只有可疑计数可能重复累加。
// 键级写冲突在内部做有界退避重试，不向调用方透出。
func (s *ProgressService) Apply(ctx context.Context, userID, lessonID uint, sessionID string, seq uint64, events []tracking.Event) (*ApplyResult, error) {
	var (
		applied bool
		crossed bool
	)

	fold := func(rec *model.VideoProgress) error {
		applied, crossed = s.fold(rec, sessionID, seq, events)
		return nil
	}

	var rec *model.VideoProgress
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		rec, err = s.Store.UpdateLocked(ctx, userID, lessonID, fold)
		if err == nil {
			break
		}
		if !errors.Is(err, util.ErrPersistenceConflict) {
			return nil, err
		}
		monitoring.ProgressConflictRetries.Inc()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	if err != nil {
		return nil, err
	}

	if applied {
		monitoring.IngestedEvents.Add(float64(len(events)))
	}

	// 完成阈值的边沿触发：只有让 Completed 从 false 翻转为 true 的那个批次登记标记。
	// 行锁保证并发批次串行通过，翻转只发生一次。
	if crossed {
		if _, err := s.Registrar.RegisterView(ctx, userID, lessonID); err != nil {
			// 标记登记本身幂等，这里只留痕不回滚进度
			logger.Log.Error("register view after completion failed",
				zap.Uint("userId", userID), zap.Uint("lessonId", lessonID), zap.Error(err))
			monitoring.RejectedBatches.WithLabelValues("register_view").Inc()
		}
	}

	return &ApplyResult{Progress: rec, Applied: applied}, nil
}

// fold 在行锁事务内执行的纯状态变换。返回 (是否入账, 是否本批跨过完成阈值)。
func (s *ProgressService) fold(rec *model.VideoProgress, sessionID string, seq uint64, events []tracking.Event) (bool, bool) {
	if rec.Sessions == nil {
		rec.Sessions = make(map[string]model.SessionState)
	}

	state, known := rec.Sessions[sessionID]
	if known && seq != 0 && seq <= state.LastSeq {
		// 客户端超时重发的旧批次：吸收为无操作
		return false, false
	}

	wasCompleted := rec.Completed

	for _, ev := range events {
		switch ev.Kind {
		case tracking.EventTimeUpdate:
			if ev.Duration > 0 {
				rec.DurationSeconds = ev.Duration
			}
			if state.HasAnchor && ev.Position > state.LastPos {
				rec.Segments = mergeSegment(rec.Segments, model.WatchedSegment{Start: state.LastPos, End: ev.Position})
			}
			state.LastPos = ev.Position
			state.HasAnchor = true
			if ev.Position > rec.MaxPosition {
				rec.MaxPosition = ev.Position
			}

		case tracking.EventLoadedMetadata:
			if ev.Duration > 0 {
				rec.DurationSeconds = ev.Duration
			}

		case tracking.EventPlay:
			state.LastPos = ev.Position
			state.HasAnchor = true

		case tracking.EventPause:
			if state.HasAnchor && ev.Position > state.LastPos {
				rec.Segments = mergeSegment(rec.Segments, model.WatchedSegment{Start: state.LastPos, End: ev.Position})
			}
			state.LastPos = ev.Position
			state.HasAnchor = true

		case tracking.EventSeek:
			// 拖动只移动锚点，不计入观看区间；回退拖动贡献为零
			state.LastPos = ev.To
			state.HasAnchor = true

		case tracking.EventEnded:
			pos := ev.Position
			if rec.DurationSeconds > 0 && (pos == 0 || pos > rec.DurationSeconds) {
				pos = rec.DurationSeconds
			}
			if state.HasAnchor && pos > state.LastPos {
				rec.Segments = mergeSegment(rec.Segments, model.WatchedSegment{Start: state.LastPos, End: pos})
			}
			if pos > rec.MaxPosition {
				rec.MaxPosition = pos
			}
			state.HasAnchor = false
		}

		for _, flag := range ev.Flags {
			rec.SuspiciousCount++
			monitoring.SuspiciousFlags.WithLabelValues(flag).Inc()
		}
	}

	rec.WatchedSeconds = segmentCoverage(rec.Segments)

	// 最新的非零时长为准；完成百分比夹在 [0,100] 且单调不减（已记录的最大值胜出）
	if rec.DurationSeconds > 0 {
		percent := rec.MaxPosition / rec.DurationSeconds * 100
		if percent > 100 {
			percent = 100
		}
		if percent > rec.CompletionPercent {
			rec.CompletionPercent = percent
		}
	}

	// 成绩贡献为完成度的正比函数，封顶100，永不回退
	if rec.CompletionPercent > rec.GradeContribution {
		rec.GradeContribution = rec.CompletionPercent
	}

	// Completed 粘滞：一旦为 true 不再回退
	if !rec.Completed && rec.CompletionPercent >= s.completionThreshold() {
		rec.Completed = true
	}

	if seq > state.LastSeq {
		state.LastSeq = seq
	}
	state.UpdatedAt = time.Now()
	rec.Sessions[sessionID] = state
	pruneSessions(rec.Sessions)

	return true, !wasCompleted && rec.Completed
}

// pruneSessions 清理过期或超量的会话游标，防止长课程把 JSON 列撑大。
func pruneSessions(sessions map[string]model.SessionState) {
	cutoff := time.Now().Add(-sessionStateTTL)
	for id, st := range sessions {
		if st.UpdatedAt.Before(cutoff) {
			delete(sessions, id)
		}
	}
	for len(sessions) > maxTrackedSessions {
		oldestID := ""
		var oldest time.Time
		for id, st := range sessions {
			if oldestID == "" || st.UpdatedAt.Before(oldest) {
				oldestID = id
				oldest = st.UpdatedAt
			}
		}
		delete(sessions, oldestID)
	}
}

// GetProgress 进度读取。本人可读自己的；admin 不受限；org_admin 仅限本组织成员。
func (s *ProgressService) GetProgress(ctx context.Context, caller *util.Claims, userID, lessonID uint) (*model.VideoProgress, error) {
	if caller == nil {
		return nil, util.ErrAuthenticationRequired
	}
	if caller.UserID != userID {
		switch caller.Role {
		case model.Admin:
		case model.OrgAdmin:
			target, err := s.Users.GetByID(userID)
			if err != nil {
				return nil, err
			}
			if target.OrganizationID != caller.OrganizationID {
				return nil, util.ErrPermissionDenied
			}
		default:
			return nil, util.ErrPermissionDenied
		}
	}
	return s.Store.Get(ctx, userID, lessonID)
}
