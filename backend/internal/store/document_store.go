package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/entity"
	"syncServer/backend/internal/patch"
)

var ErrDocumentExists = errors.New("document already exists")

// DocumentStore MySQL 实现（gorm），实现 collab.Store。
// 文档记录是唯一的共享可变资源，所有变更都走 ApplyPatch 的条件更新。
type DocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) LoadDocument(ctx context.Context, docID string) (*entity.Document, error) {
	var doc entity.Document
	err := s.db.WithContext(ctx).Preload("Collaborators").First(&doc, "id = ?", docID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, collab.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (s *DocumentStore) CreateDocument(ctx context.Context, doc *entity.Document) error {
	err := s.db.WithContext(ctx).Create(doc).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrDocumentExists
		}
		return err
	}
	return nil
}

// ApplyPatch 在一个事务里走完整个补丁状态机：
// 加载 → 鉴权 → 条件更新（WHERE id AND version，乐观并发）→ 历史 → 审计。
// 首读必须 FOR UPDATE：REPEATABLE READ 下普通 SELECT 是快照读，并发提交者
// 会拿着过期快照通过版本预检，冲突时回给客户端的"当前真值"也是旧的。
// 加锁读让落后的事务阻塞到赢家提交后再读到新版本，预检即权威判定；
// 条件更新的 WHERE version = expected 仍然保留，作为最后一道闸。
func (s *DocumentStore) ApplyPatch(ctx context.Context, in collab.SubmitInput) (collab.Result, error) {
	var res collab.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc entity.Document
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Collaborators").First(&doc, "id = ?", in.DocID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return collab.ErrNotFound
			}
			return err
		}

		// 鉴权先于版本校验：viewer 无论版本对不对都直接拒绝
		if !doc.CanEdit(in.AuthorID) {
			return collab.ErrForbidden
		}

		if doc.Version != in.ExpectedVersion {
			res = collab.Result{Accepted: false, CurrentVersion: doc.Version, CurrentContent: doc.Content}
			return nil
		}

		newContent, err := patch.Apply(doc.Content, in.Patch)
		if err != nil {
			return err
		}

		// 条件更新：content 和 version 一起改，只在存储版本仍等于 expected 时生效
		r := tx.Model(&entity.Document{}).
			Where("id = ? AND version = ?", in.DocID, in.ExpectedVersion).
			Updates(map[string]interface{}{
				"content":          newContent,
				"version":          gorm.Expr("version + 1"),
				"last_modified_by": in.AuthorID,
			})
		if r.Error != nil {
			return r.Error
		}
		if r.RowsAffected == 0 {
			// 并发提交抢先一步，重读当前真值（同样加锁读，拿到的必须是已提交的新版本）
			var cur entity.Document
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&cur, "id = ?", in.DocID).Error; err != nil {
				return err
			}
			res = collab.Result{Accepted: false, CurrentVersion: cur.Version, CurrentContent: cur.Content}
			return nil
		}

		opJSON, err := json.Marshal(in.Patch)
		if err != nil {
			return err
		}
		if err := tx.Create(&entity.PatchRecord{
			DocID:     in.DocID,
			Version:   in.ExpectedVersion, // 应用前的版本
			Operation: string(opJSON),
			AuthorID:  in.AuthorID,
			Timestamp: time.Now(),
		}).Error; err != nil {
			return err
		}

		// 审计与文档变更同事务提交，要么都成功要么都回滚
		details, _ := json.Marshal(map[string]interface{}{
			"clientId":    in.ClientID,
			"fromVersion": in.ExpectedVersion,
			"toVersion":   in.ExpectedVersion + 1,
			"patchSize":   len(opJSON),
		})
		if err := tx.Create(&entity.AuditLog{
			Action:       entity.ActionDocPatch,
			UserID:       in.AuthorID,
			ResourceType: "document",
			ResourceID:   in.DocID,
			Details:      string(details),
		}).Error; err != nil {
			return err
		}

		res = collab.Result{Accepted: true, NewVersion: in.ExpectedVersion + 1, NewContent: newContent}
		return nil
	})
	if err != nil {
		return collab.Result{}, err
	}
	return res, nil
}

func (s *DocumentStore) AppendAudit(ctx context.Context, entry *entity.AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}
