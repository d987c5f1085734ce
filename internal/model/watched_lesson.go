package model

// WatchedLesson 「已观看」标记：一个用户对一个课时最多一条，幂等创建，正常流程不更新不删除。
// swagger:model WatchedLesson
type WatchedLesson struct {
	BaseModel
	UserID   uint `gorm:"not null;uniqueIndex:idx_watched_user_lesson" json:"UserId"`
	LessonID uint `gorm:"not null;uniqueIndex:idx_watched_user_lesson" json:"LessonId"`
}

func (WatchedLesson) TableName() string {
	return "watched_lessons"
}
