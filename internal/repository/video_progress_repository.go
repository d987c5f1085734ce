package repository

import (
	"context"
	"course_video_backend/internal/model"
	"course_video_backend/internal/util"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VideoProgressRepository 进度记录的键级串行化访问。
// 同一 (user_id, lesson_id) 行的更新走行锁事务；不同键互不竞争。
type VideoProgressRepository struct {
	DB *gorm.DB
}

func NewVideoProgressRepository(db *gorm.DB) *VideoProgressRepository {
	return &VideoProgressRepository{DB: db}
}

func (r *VideoProgressRepository) Get(ctx context.Context, userID, lessonID uint) (*model.VideoProgress, error) {
	var rec model.VideoProgress
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrProgressNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// UpdateLocked 在单行行锁事务内执行 fold：加载（或创建）记录，调用 fold 原地变更，整体保存。
// fold 返回错误时事务回滚，记录保持批次应用前的状态（批次原子性）。
// 死锁或锁等待超时折算为 util.ErrPersistenceConflict，由上层做有界退避重试。
func (r *VideoProgressRepository) UpdateLocked(ctx context.Context, userID, lessonID uint, fold func(*model.VideoProgress) error) (*model.VideoProgress, error) {
	var out *model.VideoProgress

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec model.VideoProgress
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND lesson_id = ?", userID, lessonID).
			First(&rec).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = model.VideoProgress{UserID: userID, LessonID: lessonID}
			// 并发首批会在唯一索引上撞车，折算为冲突交给上层重试
			if err := tx.Create(&rec).Error; err != nil {
				if isDuplicateErr(err) {
					return util.ErrPersistenceConflict
				}
				return err
			}
		} else if err != nil {
			return err
		}

		if err := fold(&rec); err != nil {
			return err
		}

		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		out = &rec
		return nil
	})

	if err != nil {
		if isConflictErr(err) {
			return nil, util.ErrPersistenceConflict
		}
		return nil, err
	}
	return out, nil
}

func isConflictErr(err error) bool {
	if errors.Is(err, util.ErrPersistenceConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Deadlock found") ||
		strings.Contains(msg, "Lock wait timeout")
}

func isDuplicateErr(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "Duplicate entry")
}
