package util

import "errors"

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrSessionMismatch        = errors.New("session does not belong to caller or lesson")
	ErrSessionExpired         = errors.New("session token expired")
	ErrValidation             = errors.New("invalid event batch")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrLessonNotFound         = errors.New("lesson not found")
	ErrProgressNotFound       = errors.New("progress not found")
	ErrUserNotFound           = errors.New("用户不存在")

	// ErrPersistenceConflict 键级写冲突，仅在聚合/登记内部重试，不向调用方透出。
	ErrPersistenceConflict = errors.New("persistence conflict")
)
