package model

// Unit 课程单元，由课程内容系统维护。
// swagger:model Unit
type Unit struct {
	BaseModel
	Title string `gorm:"size:200;not null" json:"Title"`
	Order int    `gorm:"default:0" json:"Order"`
}

func (Unit) TableName() string {
	return "units"
}

// Lesson 课时视频元数据，视频本体托管在外部视频服务商（iframe嵌入）。
// swagger:model Lesson
type Lesson struct {
	BaseModel
	UnitID          uint    `gorm:"index" json:"UnitId"`
	Title           string  `gorm:"size:200;not null" json:"Title"`
	DurationSeconds float64 `gorm:"default:0" json:"DurationSeconds"`
	VideoURL        string  `gorm:"size:500" json:"VideoUrl"`
	Order           int     `gorm:"default:0" json:"Order"`
}

func (Lesson) TableName() string {
	return "lessons"
}
