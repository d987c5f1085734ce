package database

import (
	"course_video_backend/internal/config"
	"course_video_backend/internal/model"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	// users/organizations/units/lessons 表归属外部子系统（身份、课程内容），
	// 这里一并迁移只是为了本地开发环境自举。
	err = db.AutoMigrate(
		&model.User{},
		&model.Organization{},
		&model.Unit{},
		&model.Lesson{},
		&model.VideoProgress{},
		&model.WatchedLesson{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// 本地开发自举：课程目录为空时填充演示课时
	var lessonCount int64
	db.Model(&model.Lesson{}).Count(&lessonCount)
	if lessonCount == 0 {
		unit := &model.Unit{Title: "C语言入门", Order: 1}
		db.Create(unit)
		defaultLessons := []model.Lesson{
			{UnitID: unit.ID, Title: "变量与类型", DurationSeconds: 600, Order: 1},
			{UnitID: unit.ID, Title: "条件与循环", DurationSeconds: 720, Order: 2},
			{UnitID: unit.ID, Title: "函数与作用域", DurationSeconds: 840, Order: 3},
		}
		for _, l := range defaultLessons {
			db.Create(&l)
		}
	}

	return db, nil
}
