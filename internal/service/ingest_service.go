package service

import (
	"context"
	"course_video_backend/internal/config"
	"course_video_backend/internal/util"
	"course_video_backend/pkg/monitoring"
	"course_video_backend/pkg/tracking"
	"fmt"
	"sort"
	"sync"
	"time"
)

// IngestService 客户端遥测的唯一服务端入口：鉴权、校验、限时转发给聚合器。
type IngestService struct {
	Sessions *SessionService
	Progress *ProgressService

	mu  sync.RWMutex
	cfg config.TrackingConfig
}

func NewIngestService(sessions *SessionService, progress *ProgressService, cfg config.TrackingConfig) *IngestService {
	return &IngestService{
		Sessions: sessions,
		Progress: progress,
		cfg:      cfg,
	}
}

// UpdateConfig 配置热更新回调入口。
func (s *IngestService) UpdateConfig(cfg config.TrackingConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.Progress.SetThreshold(cfg.CompletionThreshold)
}

func (s *IngestService) config() config.TrackingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Ingest 应用一个事件批次。批次级原子：超时或失败时整批不入账，
// 客户端按原序号重试，重复批次被幂等吸收。任何被拒绝的批次都会计入失败计数器。
func (s *IngestService) Ingest(ctx context.Context, callerID uint, batch tracking.Batch) (*ApplyResult, error) {
	cfg := s.config()

	claims, err := s.Sessions.Validate(ctx, batch.SessionToken, callerID)
	if err != nil {
		monitoring.RejectedBatches.WithLabelValues("session_mismatch").Inc()
		return nil, err
	}

	if err := validateBatch(batch, cfg); err != nil {
		monitoring.RejectedBatches.WithLabelValues("validation").Inc()
		return nil, err
	}

	// 批内按客户端时间戳归一排序；跨批次的乱序与重复由聚合器的锚点/序号机制吸收
	events := make([]tracking.Event, len(batch.Events))
	copy(events, batch.Events)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].ClientTs.Before(events[j].ClientTs)
	})

	ctx, cancel := context.WithTimeout(ctx, cfg.IngestTimeout)
	defer cancel()

	result, err := s.Progress.Apply(ctx, claims.UserID, claims.LessonID, claims.SessionID, batch.Seq, events)
	if err != nil {
		monitoring.RejectedBatches.WithLabelValues("apply_failed").Inc()
		return nil, err
	}

	// 含心跳在内的每个批次都刷新「仍在观看」信号
	s.Sessions.Touch(ctx, claims.SessionID)

	return result, nil
}

func validateBatch(batch tracking.Batch, cfg config.TrackingConfig) error {
	if len(batch.Events) > cfg.MaxBatchEvents {
		return fmt.Errorf("%w: batch exceeds %d events", util.ErrValidation, cfg.MaxBatchEvents)
	}

	horizon := time.Now().Add(cfg.MaxFutureSkew)
	for i, ev := range batch.Events {
		if !tracking.IsValidKind(ev.Kind) {
			return fmt.Errorf("%w: event %d has unknown kind %q", util.ErrValidation, i, ev.Kind)
		}
		if ev.ClientTs.IsZero() {
			return fmt.Errorf("%w: event %d missing client timestamp", util.ErrValidation, i)
		}
		if ev.ClientTs.After(horizon) {
			return fmt.Errorf("%w: event %d timestamp too far in the future", util.ErrValidation, i)
		}
		if ev.Position < 0 || ev.Duration < 0 {
			return fmt.Errorf("%w: event %d has negative position or duration", util.ErrValidation, i)
		}
		// 标记值进指标标签与可疑计数，词汇表之外的一律拒绝
		for _, flag := range ev.Flags {
			if !tracking.IsValidFlag(flag) {
				return fmt.Errorf("%w: event %d has unknown flag %q", util.ErrValidation, i, flag)
			}
		}
	}
	return nil
}
