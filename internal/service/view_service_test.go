package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course_video_backend/internal/model"
)

// fakeWatchedStore 内存版标记存储，唯一键语义与数据库一致。
type fakeWatchedStore struct {
	mu      sync.Mutex
	markers map[[2]uint]model.WatchedLesson
	creates int
}

func newFakeWatchedStore() *fakeWatchedStore {
	return &fakeWatchedStore{markers: make(map[[2]uint]model.WatchedLesson)}
}

func (s *fakeWatchedStore) CreateIfAbsent(ctx context.Context, userID, lessonID uint) (*model.WatchedLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]uint{userID, lessonID}
	if m, ok := s.markers[key]; ok {
		return &m, nil
	}
	s.creates++
	m := model.WatchedLesson{UserID: userID, LessonID: lessonID}
	m.CreatedAt = time.Now()
	s.markers[key] = m
	return &m, nil
}

func (s *fakeWatchedStore) ListByUser(ctx context.Context, userID uint, lessonID uint) ([]model.WatchedLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.WatchedLesson
	for key, m := range s.markers {
		if key[0] != userID {
			continue
		}
		if lessonID != 0 && key[1] != lessonID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func TestRegisterViewIdempotent(t *testing.T) {
	store := newFakeWatchedStore()
	svc := NewViewService(store)
	ctx := context.Background()

	first, err := svc.RegisterView(ctx, 1, 10)
	require.NoError(t, err)

	second, err := svc.RegisterView(ctx, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt, "重复登记返回现存标记")
	assert.Equal(t, 1, store.creates)
}

func TestRegisterViewConcurrent(t *testing.T) {
	store := newFakeWatchedStore()
	svc := NewViewService(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RegisterView(ctx, 1, 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.creates, "并发登记只产生一个标记")
}

func TestListViews(t *testing.T) {
	store := newFakeWatchedStore()
	svc := NewViewService(store)
	ctx := context.Background()

	_, err := svc.RegisterView(ctx, 1, 10)
	require.NoError(t, err)
	_, err = svc.RegisterView(ctx, 1, 11)
	require.NoError(t, err)
	_, err = svc.RegisterView(ctx, 2, 10)
	require.NoError(t, err)

	all, err := svc.ListViews(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := svc.ListViews(ctx, 1, 11)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, uint(11), one[0].LessonID)
}
