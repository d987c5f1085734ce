package tracking

import "time"

// EventKind 规范化后的播放事件类型。任何播放器提供商的消息都先归一到这组词汇。
type EventKind string

const (
	EventPlay           EventKind = "play"
	EventPause          EventKind = "pause"
	EventSeek           EventKind = "seek"
	EventTimeUpdate     EventKind = "timeupdate"
	EventRateChange     EventKind = "ratechange"
	EventVolumeChange   EventKind = "volumechange"
	EventEnded          EventKind = "ended"
	EventLoadedMetadata EventKind = "loadedmetadata"
)

// Anomaly flag values attached by client-side heuristics. The client
// reports, the server decides what they mean for grading.
const (
	FlagImplausibleSeek = "implausible_seek"
	FlagAbnormalRate    = "abnormal_rate"
	FlagHiddenPlayback  = "hidden_playback"
)

// Event 单条规范化播放事件。Position/Duration 单位为秒，Seek 事件额外携带 From/To。
type Event struct {
	Kind     EventKind `json:"kind" binding:"required"`
	ClientTs time.Time `json:"clientTs" binding:"required"`
	Position float64   `json:"position,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Rate     float64   `json:"rate,omitempty"`
	Volume   float64   `json:"volume,omitempty"`
	From     float64   `json:"from,omitempty"`
	To       float64   `json:"to,omitempty"`
	Flags    []string  `json:"flags,omitempty"`
}

// Batch 一次上报的有序事件组。Seq 在会话内单调递增，服务端据此对重复批次做无操作应答。
// Events 为空时即心跳：只刷新"仍在观看"信号。
type Batch struct {
	SessionToken string  `json:"sessionToken" binding:"required"`
	Seq          uint64  `json:"seq"`
	Events       []Event `json:"events"`
}

// IsValidKind reports whether k is part of the canonical vocabulary.
func IsValidKind(k EventKind) bool {
	switch k {
	case EventPlay, EventPause, EventSeek, EventTimeUpdate,
		EventRateChange, EventVolumeChange, EventEnded, EventLoadedMetadata:
		return true
	}
	return false
}

// IsValidFlag reports whether f is one of the canonical anomaly flag values.
func IsValidFlag(f string) bool {
	switch f {
	case FlagImplausibleSeek, FlagAbnormalRate, FlagHiddenPlayback:
		return true
	}
	return false
}
