package model

import "time"

// ImportantDate 重要日期表 — 对应 important_dates（生日、纪念日等）
// 周期性日期按年重复，展开结果不落库。
type ImportantDate struct {
	ImportantDateID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"important_date_id"`
	HouseID         string    `gorm:"type:uuid;not null;index"                       json:"house_id"`
	Title           string    `gorm:"type:varchar(200);not null"                     json:"title"`
	Kind            string    `gorm:"type:varchar(20);not null;default:'other'"     json:"kind"` // birthday | anniversary | other
	Date            time.Time `gorm:"type:timestamptz;not null"                      json:"date"`
	IsRecurring     bool      `gorm:"not null"                                       json:"is_recurring"`
	PersonID        *string   `gorm:"type:uuid"                                      json:"person_id,omitempty"`
	SoftDeleteModel
}

// TableName 指定表名
func (ImportantDate) TableName() string { return "important_dates" }
