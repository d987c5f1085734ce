package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrAuthenticationRequired 调用方没有有效身份，会话未开启，不入队任何事件
	ErrAuthenticationRequired = errors.New("tracking: authentication required")
	// ErrSessionStartRejected 服务端拒绝开启会话（可重试，不阻断播放）
	ErrSessionStartRejected = errors.New("tracking: session start rejected")
	// ErrNoSession 当前没有活跃会话
	ErrNoSession = errors.New("tracking: no active session")
)

// Transport 把批次送达服务端。失败的批次由 Manager 原样保留重试。
type Transport interface {
	StartSession(ctx context.Context, lessonID uint) (string, error)
	SendBatch(ctx context.Context, batch Batch) error
}

// Config 客户端批量上报参数。
type Config struct {
	// BatchSize 队列达到该条数立即触发冲刷
	BatchSize int
	// BatchInterval 定时冲刷间隔
	BatchInterval time.Duration
	// HeartbeatInterval 队列为空时的心跳间隔（空批次维持「仍在观看」信号）
	HeartbeatInterval time.Duration
	// FlushTimeout 单次冲刷的网络超时
	FlushTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 5 * time.Second
	}
}

// EventPayload RecordEvent 的事件参数，按事件类型取用相应字段。
type EventPayload struct {
	Position float64
	Duration float64
	Rate     float64
	Volume   float64
	From     float64
	To       float64
}

// Manager 一次课时观看的客户端会话编排：本地状态、异常启发式标记、
// 出站队列与批量/心跳冲刷。同一 Manager 同时只有一个活跃会话，
// 对同一课时重新开启会话会先隐式结束旧会话。
//
// 追踪是尽力而为的：除开启会话外，任何操作都不向调用方报错，不阻断播放。
type Manager struct {
	transport Transport
	cfg       Config
	log       *zap.Logger
	now       func() time.Time

	mu          sync.Mutex
	token       string
	lessonID    uint
	active      bool
	queue       []Event
	pending     *Batch // 冲刷失败待重试的批次，序号冻结，先于新事件重发
	seq         uint64
	lastEventAt time.Time
	visible     bool

	flushCh chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewManager(transport Transport, cfg Config, log *zap.Logger) *Manager {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		transport: transport,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		visible:   true,
	}
}

// StartSession 开启对指定课时的追踪会话。已有活跃会话时先隐式结束旧会话。
// 失败时不入队任何事件，错误可重试；播放本身不受影响。
func (m *Manager) StartSession(ctx context.Context, lessonID uint) (string, error) {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if active {
		m.EndSession(ctx)
	}

	token, err := m.transport.StartSession(ctx, lessonID)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.token = token
	m.lessonID = lessonID
	m.active = true
	m.queue = nil
	m.pending = nil
	m.seq = 0
	m.lastEventAt = m.now()
	m.flushCh = make(chan struct{}, 1)
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(m.flushCh, m.done)

	return token, nil
}

// RecordEvent 把一条规范化事件追加进出站队列。永不阻塞、永不报错：
// 入队是尽力而为的本地状态，没有活跃会话时静默丢弃。
func (m *Manager) RecordEvent(kind EventKind, p EventPayload) {
	m.mu.Lock()

	if !m.active {
		m.mu.Unlock()
		return
	}

	now := m.now()
	ev := Event{
		Kind:     kind,
		ClientTs: now,
		Position: p.Position,
		Duration: p.Duration,
		Rate:     p.Rate,
		Volume:   p.Volume,
		From:     p.From,
		To:       p.To,
	}
	ev.Flags = m.detectAnomalies(ev, now)

	m.queue = append(m.queue, ev)
	m.lastEventAt = now
	full := len(m.queue) >= m.cfg.BatchSize
	flushCh := m.flushCh
	m.mu.Unlock()

	if full {
		// 非阻塞触发：冲刷协程已经在忙时丢弃本次通知即可
		select {
		case flushCh <- struct{}{}:
		default:
		}
	}
}

// SetVisible 更新标签页可见性标志，供隐藏播放启发式使用。
func (m *Manager) SetVisible(visible bool) {
	m.mu.Lock()
	m.visible = visible
	m.mu.Unlock()
}

// EndSession 结束会话：停止所有定时器，做最后一次尽力冲刷，然后释放本地状态。
// 冲刷结果不影响释放。
func (m *Manager) EndSession(ctx context.Context) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	done := m.done
	m.mu.Unlock()

	close(done)
	m.wg.Wait()

	// 最后一次同步尽力冲刷：先补投 pending，再送剩余队列
	m.flushOnce(ctx)
	m.flushOnce(ctx)

	m.mu.Lock()
	m.token = ""
	m.lessonID = 0
	m.queue = nil
	m.pending = nil
	m.mu.Unlock()
}

// detectAnomalies 客户端启发式：只上报标记，不做任何裁决。调用时必须已持有 m.mu。
func (m *Manager) detectAnomalies(ev Event, now time.Time) []string {
	var flags []string

	switch ev.Kind {
	case EventSeek:
		delta := ev.To - ev.From
		if delta < 0 {
			delta = -delta
		}
		elapsed := now.Sub(m.lastEventAt).Seconds()
		// 拖动跨度远超两事件间的真实流逝时间
		if delta > 60 && (elapsed <= 0 || delta > 10*elapsed) {
			flags = append(flags, FlagImplausibleSeek)
		}
	case EventRateChange:
		if ev.Rate < 0.25 || ev.Rate > 4.0 {
			flags = append(flags, FlagAbnormalRate)
		}
	case EventTimeUpdate:
		if !m.visible {
			flags = append(flags, FlagHiddenPlayback)
		}
	}
	return flags
}

// loop 批量间隔与心跳间隔两个定时触发加上队满通知，共用一条冲刷路径。
func (m *Manager) loop(flushCh chan struct{}, done chan struct{}) {
	defer m.wg.Done()

	batchTicker := time.NewTicker(m.cfg.BatchInterval)
	heartbeatTicker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer batchTicker.Stop()
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-flushCh:
			m.flushOnce(context.Background())
		case <-batchTicker.C:
			m.flushOnce(context.Background())
		case <-heartbeatTicker.C:
			if !m.heartbeat() {
				m.flushOnce(context.Background())
			}
		}
	}
}

// flushOnce 送出 pending 或从队列切出一个新批次。失败的批次连同序号原样保留，
// 下个触发点先于新事件重发，天然命中服务端的幂等无操作路径。
func (m *Manager) flushOnce(ctx context.Context) {
	m.mu.Lock()
	var batch *Batch
	switch {
	case m.pending != nil:
		batch = m.pending
	case len(m.queue) > 0:
		m.seq++
		b := Batch{SessionToken: m.token, Seq: m.seq, Events: m.queue}
		m.queue = nil
		m.pending = &b
		batch = &b
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.FlushTimeout)
	defer cancel()

	err := m.transport.SendBatch(ctx, *batch)

	m.mu.Lock()
	if err != nil {
		m.log.Debug("tracking flush failed, batch retained for retry",
			zap.Uint64("seq", batch.Seq), zap.Error(err))
	} else if m.pending == batch {
		m.pending = nil
	}
	m.mu.Unlock()
}

// heartbeat 队列为空且无待重试批次时送出空批次。返回 false 表示有积压，
// 调用方应改走常规冲刷。心跳丢了就丢了，不保留重试。
func (m *Manager) heartbeat() bool {
	m.mu.Lock()
	if m.pending != nil || len(m.queue) > 0 {
		m.mu.Unlock()
		return false
	}
	m.seq++
	batch := Batch{SessionToken: m.token, Seq: m.seq}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.FlushTimeout)
	defer cancel()

	if err := m.transport.SendBatch(ctx, batch); err != nil {
		m.log.Debug("tracking heartbeat failed", zap.Uint64("seq", batch.Seq), zap.Error(err))
	}
	return true
}
