package playersource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course_video_backend/pkg/tracking"
)

type captureTransport struct {
	mu      sync.Mutex
	batches []tracking.Batch
}

func (t *captureTransport) StartSession(ctx context.Context, lessonID uint) (string, error) {
	return "token", nil
}

func (t *captureTransport) SendBatch(ctx context.Context, batch tracking.Batch) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches = append(t.batches, batch)
	return nil
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		event string
		want  tracking.EventKind
		known bool
	}{
		{"play", tracking.EventPlay, true},
		{"playing", tracking.EventPlay, true},
		{"seeked", tracking.EventSeek, true},
		{"timeupdate", tracking.EventTimeUpdate, true},
		{"progress", tracking.EventTimeUpdate, true},
		{"playbackratechange", tracking.EventRateChange, true},
		{"finish", tracking.EventEnded, true},
		{"ready", tracking.EventLoadedMetadata, true},
		{"cuechange", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		kind, ok := Normalize(tt.event)
		assert.Equal(t, tt.known, ok, tt.event)
		if tt.known {
			assert.Equal(t, tt.want, kind, tt.event)
		}
	}
}

func TestHandleRawMalformed(t *testing.T) {
	s := New(nil, nil)
	assert.Error(t, s.HandleRaw([]byte("not json")))
}

func TestHandleRawUnknownEventDropped(t *testing.T) {
	// manager 为 nil 也不会被触达：未知事件在归一层就被丢弃
	s := New(nil, nil)
	assert.NoError(t, s.HandleRaw([]byte(`{"event":"cuechange","data":{}}`)))
}

func TestProviderMessagesFlowIntoSession(t *testing.T) {
	transport := &captureTransport{}
	m := tracking.NewManager(transport, tracking.Config{
		BatchSize:         100,
		BatchInterval:     time.Hour,
		HeartbeatInterval: time.Hour,
	}, nil)

	_, err := m.StartSession(context.Background(), 42)
	require.NoError(t, err)

	s := New(m, nil)
	require.NoError(t, s.HandleRaw([]byte(`{"event":"playing","data":{"seconds":0}}`)))
	require.NoError(t, s.HandleRaw([]byte(`{"event":"timeupdate","data":{"seconds":12.5,"duration":600}}`)))
	require.NoError(t, s.HandleRaw([]byte(`{"event":"seeked","data":{"seconds":90}}`)))
	require.NoError(t, s.HandleRaw([]byte(`{"event":"cuechange","data":{}}`)))

	m.EndSession(context.Background())

	require.Len(t, transport.batches, 1)
	events := transport.batches[0].Events
	require.Len(t, events, 3, "未知事件不进队列")

	assert.Equal(t, tracking.EventPlay, events[0].Kind)
	assert.Equal(t, tracking.EventTimeUpdate, events[1].Kind)
	assert.InDelta(t, 12.5, events[1].Position, 0.001)
	assert.InDelta(t, 600, events[1].Duration, 0.001)
	assert.Equal(t, tracking.EventSeek, events[2].Kind)
	assert.InDelta(t, 90, events[2].To, 0.001, "只给落点的拖动以 seconds 补 To")
}
