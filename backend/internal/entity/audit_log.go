package entity

import "time"

// 审计动作枚举（只记录已接受的、改变状态的动作）
const (
	ActionDocCreate    = "doc_create"
	ActionDocSubscribe = "doc_subscribe"
	ActionDocPatch     = "doc_patch"
)

// AuditLog 追加式审计流水。doc_patch 的写入与文档变更同一个事务提交。
type AuditLog struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Action       string `gorm:"type:varchar(32);index;not null"`
	UserID       uint64 `gorm:"index"`
	ResourceType string `gorm:"type:varchar(16)"`
	ResourceID   string `gorm:"type:varchar(64)"`
	Details      string `gorm:"type:json"`
	CreatedAt    time.Time
}
