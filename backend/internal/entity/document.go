package entity

import "time"

type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
)

type Document struct {
	ID             string `gorm:"primaryKey;type:varchar(64)"`
	Title          string `gorm:"type:varchar(200);not null"`
	Content        string `gorm:"type:longtext"`
	Version        uint64 `gorm:"not null;default:1"`
	CreatedBy      uint64 `gorm:"index"`
	IsPublic       bool   `gorm:"default:false;index"`
	LastModifiedBy uint64
	// 协作者列表随文档一起加载（Preload）
	Collaborators []Collaborator `gorm:"foreignKey:DocID"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanView 订阅鉴权：创建者 / 任意角色协作者 / 公开文档
func (d *Document) CanView(userID uint64) bool {
	if d.IsPublic || d.CreatedBy == userID {
		return true
	}
	for _, c := range d.Collaborators {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// CanEdit 提交补丁鉴权：创建者 / editor 角色协作者。viewer 不行
func (d *Document) CanEdit(userID uint64) bool {
	if d.CreatedBy == userID {
		return true
	}
	for _, c := range d.Collaborators {
		if c.UserID == userID && c.Role == RoleEditor {
			return true
		}
	}
	return false
}

type Collaborator struct {
	DocID  string `gorm:"primaryKey;type:varchar(64)"`
	UserID uint64 `gorm:"primaryKey"`
	Role   Role   `gorm:"type:varchar(16);default:viewer"`
}

// PatchRecord 是文档补丁历史的一条，只追加，不修剪。
// Version 记录的是应用该补丁“之前”的版本号。
type PatchRecord struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	DocID     string `gorm:"index;type:varchar(64);not null"`
	Version   uint64 `gorm:"not null"`
	Operation string `gorm:"type:json"` // 补丁的 JSON 原文
	AuthorID  uint64
	Timestamp time.Time
}
