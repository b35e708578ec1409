package collab

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"syncServer/backend/internal/entity"
	"syncServer/backend/internal/patch"
)

// MemoryStore 内存实现：持有所有文档的状态。
// 单机用，也是引擎测试的依托。锁内完成 加载→鉴权→版本校验→应用→历史→审计，
// 与 MySQL 实现的事务语义对齐。
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string]*entity.Document
	history map[string][]entity.PatchRecord
	audits  []entity.AuditLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]*entity.Document),
		history: make(map[string][]entity.PatchRecord),
	}
}

// 返回副本，调用方改不到内部状态
func cloneDoc(d *entity.Document) *entity.Document {
	out := *d
	out.Collaborators = append([]entity.Collaborator(nil), d.Collaborators...)
	return &out
}

func (m *MemoryStore) LoadDocument(ctx context.Context, docID string) (*entity.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (m *MemoryStore) CreateDocument(ctx context.Context, doc *entity.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.Version == 0 {
		doc.Version = 1
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	m.docs[doc.ID] = cloneDoc(doc)
	return nil
}

func (m *MemoryStore) ApplyPatch(ctx context.Context, in SubmitInput) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[in.DocID]
	if !ok {
		return Result{}, ErrNotFound
	}
	// 鉴权先于版本校验
	if !doc.CanEdit(in.AuthorID) {
		return Result{}, ErrForbidden
	}
	if doc.Version != in.ExpectedVersion {
		return Result{Accepted: false, CurrentVersion: doc.Version, CurrentContent: doc.Content}, nil
	}

	newContent, err := patch.Apply(doc.Content, in.Patch)
	if err != nil {
		return Result{}, err
	}

	opJSON, err := json.Marshal(in.Patch)
	if err != nil {
		return Result{}, err
	}

	doc.Content = newContent
	doc.Version++
	doc.LastModifiedBy = in.AuthorID
	doc.UpdatedAt = time.Now()

	m.history[in.DocID] = append(m.history[in.DocID], entity.PatchRecord{
		DocID:     in.DocID,
		Version:   in.ExpectedVersion, // 应用前的版本
		Operation: string(opJSON),
		AuthorID:  in.AuthorID,
		Timestamp: time.Now(),
	})
	m.audits = append(m.audits, entity.AuditLog{
		Action:       entity.ActionDocPatch,
		UserID:       in.AuthorID,
		ResourceType: "document",
		ResourceID:   in.DocID,
		CreatedAt:    time.Now(),
	})

	return Result{Accepted: true, NewVersion: doc.Version, NewContent: doc.Content}, nil
}

func (m *MemoryStore) AppendAudit(ctx context.Context, entry *entity.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *entry
	e.CreatedAt = time.Now()
	m.audits = append(m.audits, e)
	return nil
}

// History 返回某文档的补丁历史（测试断言用）
func (m *MemoryStore) History(docID string) []entity.PatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.PatchRecord(nil), m.history[docID]...)
}

// Audits 返回全部审计流水（测试断言用）
func (m *MemoryStore) Audits() []entity.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.AuditLog(nil), m.audits...)
}
