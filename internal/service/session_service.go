package service

import (
	"context"
	"course_video_backend/internal/model"
	"course_video_backend/internal/util"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// LessonCatalog 课程目录查询（外部内容系统）。
type LessonCatalog interface {
	GetByID(ctx context.Context, lessonID uint) (*model.Lesson, error)
}

// SessionClaims 会话令牌声明：绑定一个观看者、一个课时、一次连续观看实例。
type SessionClaims struct {
	SessionID string `json:"sid"`
	UserID    uint   `json:"user_id"`
	LessonID  uint   `json:"lesson_id"`
	jwt.RegisteredClaims
}

// SessionService 追踪会话的签发与校验。令牌为 HS256 JWT，对客户端不透明；
// Redis 里维护带 TTL 的存活键作为「仍在观看」信号，由每个批次（含心跳）刷新。
type SessionService struct {
	Lessons     LessonCatalog
	Redis       *redis.Client
	Secret      string
	TTL         time.Duration
	LivenessTTL time.Duration
}

func NewSessionService(lessons LessonCatalog, rdb *redis.Client, secret string, ttl, livenessTTL time.Duration) *SessionService {
	return &SessionService{
		Lessons:     lessons,
		Redis:       rdb,
		Secret:      secret,
		TTL:         ttl,
		LivenessTTL: livenessTTL,
	}
}

// Start 为 (用户, 课时) 签发新会话令牌。课时不存在则拒绝开启会话。
func (s *SessionService) Start(ctx context.Context, userID, lessonID uint) (string, error) {
	if _, err := s.Lessons.GetByID(ctx, lessonID); err != nil {
		return "", err
	}

	now := time.Now()
	claims := &SessionClaims{
		SessionID: uuid.New().String(),
		UserID:    userID,
		LessonID:  lessonID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.Secret))
	if err != nil {
		return "", err
	}

	s.Touch(ctx, claims.SessionID)
	return signed, nil
}

// Validate 校验令牌签名与归属：调用者必须是开启会话的身份。
func (s *SessionService) Validate(ctx context.Context, tokenString string, callerID uint) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.Secret), nil
	})
	if err != nil {
		return nil, util.ErrSessionMismatch
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, util.ErrSessionMismatch
	}
	if claims.UserID != callerID {
		return nil, util.ErrSessionMismatch
	}
	return claims, nil
}

// Touch 刷新会话存活信号。Redis 不可用时静默跳过：存活信号是尽力而为的可观测性，不阻断入账。
func (s *SessionService) Touch(ctx context.Context, sessionID string) {
	if s.Redis == nil {
		return
	}
	s.Redis.Set(ctx, livenessKey(sessionID), time.Now().Unix(), s.LivenessTTL)
}

// IsLive 会话当前是否仍在观看（存活键未过期）。
func (s *SessionService) IsLive(ctx context.Context, sessionID string) bool {
	if s.Redis == nil {
		return false
	}
	n, err := s.Redis.Exists(ctx, livenessKey(sessionID)).Result()
	return err == nil && n > 0
}

func livenessKey(sessionID string) string {
	return "tracking:live:" + sessionID
}
