package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"syncServer/backend/internal/entity"
	"syncServer/backend/internal/patch"
)

var (
	ErrNotFound  = errors.New("DOC_NOT_FOUND")
	ErrForbidden = errors.New("NO_EDIT_PERMISSION")
)

// SubmitInput 补丁提交（Proposed 状态）的全部输入
type SubmitInput struct {
	DocID           string
	Patch           patch.Patch
	ExpectedVersion uint64
	AuthorID        uint64
	ClientID        string
}

// Result 是补丁提交的两种“正常”结局：
// - Accepted=true：已应用，NewVersion/NewContent 有效
// - Accepted=false：版本冲突（这不是错误！），Current* 是服务端当前真值，
//   客户端拿它对齐后重新提交
type Result struct {
	Accepted       bool
	NewVersion     uint64
	NewContent     string
	CurrentVersion uint64
	CurrentContent string
}

// Snapshot 新订阅者收到的完整状态
type Snapshot struct {
	DocID   string
	Content string
	Version uint64
	Title   string
}

// Store 文档持久层接口
// ApplyPatch 必须在一个事务里完成：加载 → 鉴权 → 条件更新（WHERE version = expected）
// → 追加历史 → 追加审计。鉴权先于版本校验。任一步失败则整体回滚。
type Store interface {
	LoadDocument(ctx context.Context, docID string) (*entity.Document, error)
	CreateDocument(ctx context.Context, doc *entity.Document) error
	ApplyPatch(ctx context.Context, in SubmitInput) (Result, error)
	AppendAudit(ctx context.Context, entry *entity.AuditLog) error
}

// Service 协作引擎：订阅鉴权 + 快照、补丁提交、文档创建。
// 房间成员关系不在这里，归 ws.Hub 管。
type Service struct {
	store      Store
	dispatcher *KafkaDispatcher // 可为 nil（测试 / 未配置 Kafka）

	// 同一文档的并发订阅只触发一次加载
	loads singleflight.Group
}

func NewService(store Store, dispatcher *KafkaDispatcher) *Service {
	return &Service{store: store, dispatcher: dispatcher}
}

// Subscribe 加载文档并做订阅鉴权。拒绝时只返回错误，不改任何状态。
// 成功后追加 doc_subscribe 审计（审计失败只打日志，不影响订阅）。
func (s *Service) Subscribe(ctx context.Context, userID uint64, docID string) (*Snapshot, error) {
	v, err, _ := s.loads.Do(docID, func() (interface{}, error) {
		return s.store.LoadDocument(ctx, docID)
	})
	if err != nil {
		return nil, err
	}
	doc := v.(*entity.Document)
	if !doc.CanView(userID) {
		return nil, ErrForbidden
	}

	if err := s.store.AppendAudit(ctx, &entity.AuditLog{
		Action:       entity.ActionDocSubscribe,
		UserID:       userID,
		ResourceType: "document",
		ResourceID:   docID,
	}); err != nil {
		log.Printf("append subscribe audit error (user=%d, doc=%s): %v", userID, docID, err)
	}

	return &Snapshot{DocID: doc.ID, Content: doc.Content, Version: doc.Version, Title: doc.Title}, nil
}

// SubmitPatch 走完 Proposed → Validated → {Applied | Conflicted | Rejected}。
// 事务性全部在 Store.ApplyPatch 里；这里只做补丁格式校验和提交后的事件下发。
func (s *Service) SubmitPatch(ctx context.Context, in SubmitInput) (Result, error) {
	if err := in.Patch.Validate(); err != nil {
		return Result{}, err
	}

	res, err := s.store.ApplyPatch(ctx, in)
	if err != nil {
		return Result{}, err
	}

	// 提交成功后把事件丢给 Kafka 调度器（尽力送达，不参与事务）
	if res.Accepted && s.dispatcher != nil {
		evt := DocPatchEvent{
			EventType:   "PATCH_APPLIED",
			DocID:       in.DocID,
			Version:     res.NewVersion,
			AuthorID:    in.AuthorID,
			ClientID:    in.ClientID,
			BaseVersion: in.ExpectedVersion,
			Patch:       in.Patch,
			AppliedAt:   time.Now(),
		}
		if err := s.dispatcher.Enqueue(ctx, evt); err != nil {
			log.Printf("enqueue patch event error (doc=%s): %v", in.DocID, err)
		}
	}

	return res, nil
}

// CreateDocument 新建文档，初始版本为 1，创建者即所有者
func (s *Service) CreateDocument(ctx context.Context, creatorID uint64, title string) (*entity.Document, error) {
	doc := &entity.Document{
		ID:        fmt.Sprintf("d-%d", time.Now().UnixNano()),
		Title:     title,
		Version:   1,
		CreatedBy: creatorID,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.store.AppendAudit(ctx, &entity.AuditLog{
		Action:       entity.ActionDocCreate,
		UserID:       creatorID,
		ResourceType: "document",
		ResourceID:   doc.ID,
	}); err != nil {
		log.Printf("append create audit error (user=%d, doc=%s): %v", creatorID, doc.ID, err)
	}
	return doc, nil
}

// GetDocument 读取当前状态（REST 用），和订阅走同一套鉴权
func (s *Service) GetDocument(ctx context.Context, userID uint64, docID string) (*entity.Document, error) {
	doc, err := s.store.LoadDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !doc.CanView(userID) {
		return nil, ErrForbidden
	}
	return doc, nil
}
