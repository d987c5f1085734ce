package model

import (
	"time"
)

// WatchedSegment 一段已观看的播放区间 [Start, End)，单位秒。
type WatchedSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SessionState 单个播放会话在聚合侧的游标：时间锚点与最近一次已应用的批次序号。
// 与进度记录存在同一行里，保证批次幂等判定与进度更新的事务一致性。
type SessionState struct {
	LastPos   float64   `json:"lastPos"`
	HasAnchor bool      `json:"hasAnchor"`
	LastSeq   uint64    `json:"lastSeq"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VideoProgress 一个 (用户, 课时) 的持久观看进度。
//
// 不变式：CompletionPercent 始终落在 [0,100]；Completed 一旦为 true 不再回退；
// GradeContribution 与 SuspiciousCount 单调不减；WatchedSeconds 为 Segments 并集覆盖长度，
// 跨会话重叠区间不重复计数。
// swagger:model VideoProgress
type VideoProgress struct {
	BaseModel
	UserID            uint                    `gorm:"not null;uniqueIndex:idx_progress_user_lesson" json:"UserId"`
	LessonID          uint                    `gorm:"not null;uniqueIndex:idx_progress_user_lesson" json:"LessonId"`
	WatchedSeconds    float64                 `gorm:"default:0" json:"WatchedSeconds"`
	MaxPosition       float64                 `gorm:"default:0" json:"MaxPosition"`
	DurationSeconds   float64                 `gorm:"default:0" json:"DurationSeconds"`
	CompletionPercent float64                 `gorm:"default:0" json:"CompletionPercent"`
	Completed         bool                    `gorm:"default:false" json:"Completed"`
	GradeContribution float64                 `gorm:"default:0" json:"GradeContribution"`
	SuspiciousCount   int                     `gorm:"default:0" json:"SuspiciousCount"`
	Segments          []WatchedSegment        `gorm:"type:json;serializer:json" json:"Segments,omitempty"`
	Sessions          map[string]SessionState `gorm:"type:json;serializer:json" json:"-"`
}

func (VideoProgress) TableName() string {
	return "video_progresses"
}
