package store

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"syncServer/backend/internal/entity"
)

func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	// 建表/补列。补丁历史和审计都是只追加的表
	if err := db.AutoMigrate(
		&entity.Document{},
		&entity.Collaborator{},
		&entity.PatchRecord{},
		&entity.AuditLog{},
	); err != nil {
		return nil, err
	}
	return db, nil
}
