package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course_video_backend/internal/model"
	"course_video_backend/internal/util"
)

// fakeLessonCatalog 内存版课程目录。
type fakeLessonCatalog struct {
	lessons map[uint]*model.Lesson
}

func (c *fakeLessonCatalog) GetByID(ctx context.Context, lessonID uint) (*model.Lesson, error) {
	l, ok := c.lessons[lessonID]
	if !ok {
		return nil, util.ErrLessonNotFound
	}
	return l, nil
}

func newSessionService() *SessionService {
	catalog := &fakeLessonCatalog{lessons: map[uint]*model.Lesson{
		42: {Title: "变量与类型", DurationSeconds: 600},
	}}
	return NewSessionService(catalog, nil, "test-secret-at-least-32-bytes-long!", 12*time.Hour, 90*time.Second)
}

func TestStartSessionIssuesValidToken(t *testing.T) {
	svc := newSessionService()
	ctx := context.Background()

	token, err := svc.Start(ctx, 7, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(ctx, token, 7)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, uint(42), claims.LessonID)
	assert.NotEmpty(t, claims.SessionID)
}

func TestStartSessionUnknownLessonRejected(t *testing.T) {
	svc := newSessionService()

	_, err := svc.Start(context.Background(), 7, 999)
	assert.ErrorIs(t, err, util.ErrLessonNotFound)
}

func TestSessionIDsAreUnique(t *testing.T) {
	svc := newSessionService()
	ctx := context.Background()

	t1, err := svc.Start(ctx, 7, 42)
	require.NoError(t, err)
	t2, err := svc.Start(ctx, 7, 42)
	require.NoError(t, err)

	c1, err := svc.Validate(ctx, t1, 7)
	require.NoError(t, err)
	c2, err := svc.Validate(ctx, t2, 7)
	require.NoError(t, err)
	assert.NotEqual(t, c1.SessionID, c2.SessionID, "同一课时的两次观看是两个会话")
}

func TestValidateRejectsWrongCaller(t *testing.T) {
	svc := newSessionService()
	ctx := context.Background()

	token, err := svc.Start(ctx, 7, 42)
	require.NoError(t, err)

	// 令牌绑定开启者身份：别人拿到也用不了
	_, err = svc.Validate(ctx, token, 8)
	assert.ErrorIs(t, err, util.ErrSessionMismatch)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	svc := newSessionService()
	ctx := context.Background()

	token, err := svc.Start(ctx, 7, 42)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, token+"x", 7)
	assert.ErrorIs(t, err, util.ErrSessionMismatch)

	other := newSessionService()
	other.Secret = "another-secret-also-32-bytes-long!!"
	otherToken, err := other.Start(ctx, 7, 42)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, otherToken, 7)
	assert.ErrorIs(t, err, util.ErrSessionMismatch)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := newSessionService()
	svc.TTL = -time.Minute
	ctx := context.Background()

	token, err := svc.Start(ctx, 7, 42)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, token, 7)
	assert.ErrorIs(t, err, util.ErrSessionMismatch)
}

func TestLivenessDegradesWithoutRedis(t *testing.T) {
	svc := newSessionService()
	ctx := context.Background()

	// Redis 缺席时存活信号静默降级，不 panic 不报错
	svc.Touch(ctx, "some-session")
	assert.False(t, svc.IsLive(ctx, "some-session"))
}
