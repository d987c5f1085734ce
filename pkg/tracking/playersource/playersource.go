// Package playersource 把各播放器提供商 postMessage 风格的原始消息
// 归一成规范事件词汇后喂给追踪会话。未知事件静默丢弃，不进队列。
package playersource

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"course_video_backend/pkg/tracking"
)

// providerEvents 提供商事件名到规范词汇的映射。
// 同一语义的不同叫法（playing/play、seeked/seek）都归到同一个规范类型。
var providerEvents = map[string]tracking.EventKind{
	"play":               tracking.EventPlay,
	"playing":            tracking.EventPlay,
	"pause":              tracking.EventPause,
	"seeked":             tracking.EventSeek,
	"seek":               tracking.EventSeek,
	"timeupdate":         tracking.EventTimeUpdate,
	"progress":           tracking.EventTimeUpdate,
	"ratechange":         tracking.EventRateChange,
	"playbackratechange": tracking.EventRateChange,
	"volumechange":       tracking.EventVolumeChange,
	"ended":              tracking.EventEnded,
	"finish":             tracking.EventEnded,
	"loadedmetadata":     tracking.EventLoadedMetadata,
	"ready":              tracking.EventLoadedMetadata,
}

// Message 提供商消息的通用形态：事件名加一个宽松的数据体。
type Message struct {
	Event string      `json:"event"`
	Data  MessageData `json:"data"`
}

// MessageData 各家提供商字段名不一，这里做宽松兼容（seconds/currentTime 等）。
type MessageData struct {
	Seconds     float64 `json:"seconds"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	Rate        float64 `json:"playbackRate"`
	Volume      float64 `json:"volume"`
	From        float64 `json:"from"`
	To          float64 `json:"to"`
}

func (d MessageData) position() float64 {
	if d.Seconds != 0 {
		return d.Seconds
	}
	return d.CurrentTime
}

// Source 一个已绑定追踪会话的消息入口。
type Source struct {
	manager *tracking.Manager
	log     *zap.Logger
}

func New(manager *tracking.Manager, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{manager: manager, log: log}
}

// HandleRaw 解析一条原始 JSON 消息并转发。解析失败返回错误，未知事件不算错误。
func (s *Source) HandleRaw(raw []byte) error {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("playersource: malformed message: %w", err)
	}
	s.Handle(msg)
	return nil
}

// Handle 归一并转发一条提供商消息。词汇表之外的事件丢弃。
func (s *Source) Handle(msg Message) {
	kind, ok := Normalize(msg.Event)
	if !ok {
		s.log.Debug("dropping unknown player event", zap.String("event", msg.Event))
		return
	}

	payload := tracking.EventPayload{
		Position: msg.Data.position(),
		Duration: msg.Data.Duration,
		Rate:     msg.Data.Rate,
		Volume:   msg.Data.Volume,
		From:     msg.Data.From,
		To:       msg.Data.To,
	}
	// seek 语义以 To 为准；有些提供商只给落点不给起点
	if kind == tracking.EventSeek && payload.To == 0 {
		payload.To = payload.Position
	}

	s.manager.RecordEvent(kind, payload)
}

// Normalize 把提供商事件名映射到规范类型，未知事件返回 false。
func Normalize(event string) (tracking.EventKind, bool) {
	kind, ok := providerEvents[event]
	return kind, ok
}
