package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course_video_backend/internal/config"
	"course_video_backend/internal/model"
	"course_video_backend/internal/service"
	"course_video_backend/internal/util"
	"course_video_backend/pkg/tracking"
)

// ---- 内存依赖 ----

type memLessonCatalog struct {
	lessons map[uint]*model.Lesson
}

func (c *memLessonCatalog) GetByID(ctx context.Context, lessonID uint) (*model.Lesson, error) {
	l, ok := c.lessons[lessonID]
	if !ok {
		return nil, util.ErrLessonNotFound
	}
	return l, nil
}

func (c *memLessonCatalog) GetTitles(ctx context.Context, lessonIDs []uint) (map[uint]string, error) {
	out := make(map[uint]string)
	for _, id := range lessonIDs {
		if l, ok := c.lessons[id]; ok {
			out[id] = l.Title
		}
	}
	return out, nil
}

type memProgressStore struct {
	records map[[2]uint]*model.VideoProgress
}

func (s *memProgressStore) Get(ctx context.Context, userID, lessonID uint) (*model.VideoProgress, error) {
	rec, ok := s.records[[2]uint{userID, lessonID}]
	if !ok {
		return nil, util.ErrProgressNotFound
	}
	return rec, nil
}

func (s *memProgressStore) UpdateLocked(ctx context.Context, userID, lessonID uint, fold func(*model.VideoProgress) error) (*model.VideoProgress, error) {
	key := [2]uint{userID, lessonID}
	rec, ok := s.records[key]
	if !ok {
		rec = &model.VideoProgress{UserID: userID, LessonID: lessonID}
		s.records[key] = rec
	}
	if err := fold(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

type memWatchedStore struct {
	markers map[[2]uint]model.WatchedLesson
}

func (s *memWatchedStore) CreateIfAbsent(ctx context.Context, userID, lessonID uint) (*model.WatchedLesson, error) {
	key := [2]uint{userID, lessonID}
	if m, ok := s.markers[key]; ok {
		return &m, nil
	}
	m := model.WatchedLesson{UserID: userID, LessonID: lessonID}
	m.CreatedAt = time.Now()
	s.markers[key] = m
	return &m, nil
}

func (s *memWatchedStore) ListByUser(ctx context.Context, userID uint, lessonID uint) ([]model.WatchedLesson, error) {
	out := []model.WatchedLesson{}
	for key, m := range s.markers {
		if key[0] == userID && (lessonID == 0 || key[1] == lessonID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memWatchedStore) ListByUsers(ctx context.Context, userIDs []uint) ([]model.WatchedLesson, error) {
	allowed := map[uint]bool{}
	for _, id := range userIDs {
		allowed[id] = true
	}
	out := []model.WatchedLesson{}
	for key, m := range s.markers {
		if userIDs == nil || allowed[key[0]] {
			out = append(out, m)
		}
	}
	return out, nil
}

type memUserDirectory struct {
	users map[uint]*model.User
}

func (d *memUserDirectory) GetByID(userID uint) (*model.User, error) {
	u, ok := d.users[userID]
	if !ok {
		return nil, util.ErrUserNotFound
	}
	return u, nil
}

func (d *memUserDirectory) ListIDsByOrganization(orgID uint) ([]uint, error) {
	var ids []uint
	for id, u := range d.users {
		if u.OrganizationID == orgID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ---- 路由装配 ----

type trackingFixture struct {
	router   *gin.Engine
	sessions *service.SessionService
	watched  *memWatchedStore
}

// claimsMiddleware 模拟鉴权中间件：直接把身份放进上下文
func claimsMiddleware(claims *util.Claims) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims != nil {
			c.Set("user", claims)
		}
		c.Next()
	}
}

func newTrackingFixture(claims *util.Claims) *trackingFixture {
	gin.SetMode(gin.TestMode)

	catalog := &memLessonCatalog{lessons: map[uint]*model.Lesson{
		42: {Title: "变量与类型", DurationSeconds: 600},
	}}
	users := &memUserDirectory{users: map[uint]*model.User{}}
	watched := &memWatchedStore{markers: map[[2]uint]model.WatchedLesson{}}

	sessions := service.NewSessionService(catalog, nil, "test-secret-at-least-32-bytes-long!", time.Hour, time.Minute)
	views := service.NewViewService(watched)
	progress := service.NewProgressService(&memProgressStore{records: map[[2]uint]*model.VideoProgress{}}, views, users, 95.0)
	ingest := service.NewIngestService(sessions, progress, config.TrackingConfig{
		CompletionThreshold: 95.0,
		MaxFutureSkew:       5 * time.Minute,
		IngestTimeout:       10 * time.Second,
		MaxBatchEvents:      200,
	})

	ctrl := NewTrackingController(ingest, sessions, progress, views)

	r := gin.New()
	group := r.Group("/api/tracking", claimsMiddleware(claims))
	group.POST("/sessions", ctrl.StartSession)
	group.POST("/events", ctrl.IngestBatch)
	group.GET("/progress/:lessonId", ctrl.GetProgress)
	group.GET("/watched", ctrl.ListWatched)

	return &trackingFixture{router: r, sessions: sessions, watched: watched}
}

func (f *trackingFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

func student(id uint) *util.Claims {
	return &util.Claims{UserID: id, Role: model.Student}
}

// ---- 用例 ----

func TestStartSessionEndpoint(t *testing.T) {
	f := newTrackingFixture(student(7))

	w := f.do(t, http.MethodPost, "/api/tracking/sessions", gin.H{"lessonId": 42})
	require.Equal(t, http.StatusCreated, w.Code)

	var data struct {
		SessionToken string `json:"sessionToken"`
	}
	decodeData(t, w, &data)
	assert.NotEmpty(t, data.SessionToken)
}

func TestStartSessionUnknownLesson(t *testing.T) {
	f := newTrackingFixture(student(7))

	w := f.do(t, http.MethodPost, "/api/tracking/sessions", gin.H{"lessonId": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartSessionRequiresAuth(t *testing.T) {
	f := newTrackingFixture(nil)

	w := f.do(t, http.MethodPost, "/api/tracking/sessions", gin.H{"lessonId": 42})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngestBatchEndpoint(t *testing.T) {
	f := newTrackingFixture(student(7))

	token, err := f.sessions.Start(context.Background(), 7, 42)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/tracking/events", tracking.Batch{
		SessionToken: token,
		Seq:          1,
		Events: []tracking.Event{
			{Kind: tracking.EventPlay, ClientTs: time.Now(), Position: 0},
			{Kind: tracking.EventTimeUpdate, ClientTs: time.Now(), Position: 30, Duration: 600},
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var data struct {
		Applied  bool                 `json:"applied"`
		Progress *model.VideoProgress `json:"progress"`
	}
	decodeData(t, w, &data)
	assert.True(t, data.Applied)
	require.NotNil(t, data.Progress)
	assert.InDelta(t, 30, data.Progress.WatchedSeconds, 0.001)
}

func TestIngestBatchForeignSessionForbidden(t *testing.T) {
	f := newTrackingFixture(student(8))

	// 令牌属于用户7，调用者是用户8
	token, err := f.sessions.Start(context.Background(), 7, 42)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/tracking/events", tracking.Batch{SessionToken: token, Seq: 1})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIngestBatchValidationError(t *testing.T) {
	f := newTrackingFixture(student(7))

	token, err := f.sessions.Start(context.Background(), 7, 42)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/tracking/events", tracking.Batch{
		SessionToken: token,
		Seq:          1,
		Events:       []tracking.Event{{Kind: "teleport", ClientTs: time.Now()}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProgressEndpoint(t *testing.T) {
	f := newTrackingFixture(student(7))

	token, err := f.sessions.Start(context.Background(), 7, 42)
	require.NoError(t, err)
	w := f.do(t, http.MethodPost, "/api/tracking/events", tracking.Batch{
		SessionToken: token,
		Seq:          1,
		Events: []tracking.Event{
			{Kind: tracking.EventPlay, ClientTs: time.Now(), Position: 0},
			{Kind: tracking.EventTimeUpdate, ClientTs: time.Now(), Position: 300, Duration: 600},
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = f.do(t, http.MethodGet, "/api/tracking/progress/42", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rec model.VideoProgress
	decodeData(t, w, &rec)
	assert.InDelta(t, 50, rec.CompletionPercent, 0.001)
}

func TestGetProgressNotFound(t *testing.T) {
	f := newTrackingFixture(student(7))

	w := f.do(t, http.MethodGet, "/api/tracking/progress/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetProgressOtherUserForbidden(t *testing.T) {
	f := newTrackingFixture(student(7))

	w := f.do(t, http.MethodGet, "/api/tracking/progress/42?userId=9", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListWatchedEndpoint(t *testing.T) {
	f := newTrackingFixture(student(7))
	f.watched.markers[[2]uint{7, 42}] = model.WatchedLesson{UserID: 7, LessonID: 42}

	w := f.do(t, http.MethodGet, "/api/tracking/watched", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var markers []model.WatchedLesson
	decodeData(t, w, &markers)
	require.Len(t, markers, 1)
	assert.Equal(t, uint(42), markers[0].LessonID)
}
