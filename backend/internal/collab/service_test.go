package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"syncServer/backend/internal/entity"
	"syncServer/backend/internal/patch"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewService(store, nil), store
}

func seedDoc(t *testing.T, store *MemoryStore, doc *entity.Document) {
	t.Helper()
	if err := store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("seed document error: %v", err)
	}
}

func TestSubmitPatch_AcceptBumpsVersionAndHistory(t *testing.T) {
	svc, store := newTestService(t)
	seedDoc(t, store, &entity.Document{ID: "doc1", Title: "t", Content: "ABCDE", Version: 3, CreatedBy: 1})

	res, err := svc.SubmitPatch(context.Background(), SubmitInput{
		DocID:           "doc1",
		Patch:           patch.Patch{Type: patch.KindInsert, Position: 5, Content: "F"},
		ExpectedVersion: 3,
		AuthorID:        1,
		ClientID:        "c1",
	})
	if err != nil {
		t.Fatalf("SubmitPatch() error = %v", err)
	}
	if !res.Accepted {
		t.Fatalf("SubmitPatch() not accepted: %+v", res)
	}
	if res.NewVersion != 4 || res.NewContent != "ABCDEF" {
		t.Fatalf("got version=%d content=%q, want 4/%q", res.NewVersion, res.NewContent, "ABCDEF")
	}

	hist := store.History("doc1")
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	// 历史条目记录的是应用前的版本
	if hist[0].Version != 3 {
		t.Fatalf("history version = %d, want 3", hist[0].Version)
	}
	var recorded patch.Patch
	if err := json.Unmarshal([]byte(hist[0].Operation), &recorded); err != nil {
		t.Fatalf("history operation not valid json: %v", err)
	}
	if recorded.Type != patch.KindInsert || recorded.Content != "F" {
		t.Fatalf("history operation = %+v", recorded)
	}

	doc, err := store.LoadDocument(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if doc.LastModifiedBy != 1 {
		t.Fatalf("lastModifiedBy = %d, want 1", doc.LastModifiedBy)
	}
}

func TestSubmitPatch_StaleResubmitNeverMutates(t *testing.T) {
	svc, store := newTestService(t)
	seedDoc(t, store, &entity.Document{ID: "doc1", Content: "ABCDE", Version: 3, CreatedBy: 1})

	// 先成功提交一次，推进到版本 4
	if _, err := svc.SubmitPatch(context.Background(), SubmitInput{
		DocID: "doc1", Patch: patch.Patch{Type: patch.KindInsert, Position: 5, Content: "F"},
		ExpectedVersion: 3, AuthorID: 1,
	}); err != nil {
		t.Fatalf("initial submit error: %v", err)
	}

	// 同一个过期版本重复提交多少次都不会改状态，且总是返回当前真值
	stale := SubmitInput{
		DocID: "doc1", Patch: patch.Patch{Type: patch.KindDelete, Position: 0, Length: 1},
		ExpectedVersion: 3, AuthorID: 1,
	}
	for i := 0; i < 5; i++ {
		res, err := svc.SubmitPatch(context.Background(), stale)
		if err != nil {
			t.Fatalf("stale submit %d error: %v", i, err)
		}
		if res.Accepted {
			t.Fatalf("stale submit %d was accepted", i)
		}
		if res.CurrentVersion != 4 || res.CurrentContent != "ABCDEF" {
			t.Fatalf("stale submit %d truth = %d/%q, want 4/%q", i, res.CurrentVersion, res.CurrentContent, "ABCDEF")
		}
	}

	if hist := store.History("doc1"); len(hist) != 1 {
		t.Fatalf("history length = %d after stale resubmits, want 1", len(hist))
	}
}

func TestSubmitPatch_ConcurrentProposersExactlyOneWins(t *testing.T) {
	svc, store := newTestService(t)
	seedDoc(t, store, &entity.Document{ID: "doc1", Content: "ABCDE", Version: 3, CreatedBy: 1})

	const n = 16
	results := make([]Result, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := svc.SubmitPatch(context.Background(), SubmitInput{
				DocID: "doc1", Patch: patch.Patch{Type: patch.KindInsert, Position: 5, Content: "F"},
				ExpectedVersion: 3, AuthorID: 1,
			})
			if err != nil {
				t.Errorf("submit %d error: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, res := range results {
		if res.Accepted {
			accepted++
			if res.NewVersion != 4 {
				t.Fatalf("winner version = %d, want 4", res.NewVersion)
			}
		} else {
			// 落败者拿到的是胜者提交后的真值
			if res.CurrentVersion != 4 || res.CurrentContent != "ABCDEF" {
				t.Fatalf("loser truth = %d/%q, want 4/%q", res.CurrentVersion, res.CurrentContent, "ABCDEF")
			}
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want exactly 1", accepted)
	}
}

func TestSubmitPatch_ViewerAlwaysForbidden(t *testing.T) {
	svc, store := newTestService(t)
	seedDoc(t, store, &entity.Document{
		ID: "doc1", Content: "ABCDE", Version: 3, CreatedBy: 1,
		Collaborators: []entity.Collaborator{{DocID: "doc1", UserID: 2, Role: entity.RoleViewer}},
	})

	// 版本对不对都一样：鉴权先于版本校验
	for _, v := range []uint64{3, 99} {
		_, err := svc.SubmitPatch(context.Background(), SubmitInput{
			DocID: "doc1", Patch: patch.Patch{Type: patch.KindReplace, Content: "x"},
			ExpectedVersion: v, AuthorID: 2,
		})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("viewer submit (v=%d) error = %v, want ErrForbidden", v, err)
		}
	}

	doc, _ := store.LoadDocument(context.Background(), "doc1")
	if doc.Version != 3 || doc.Content != "ABCDE" {
		t.Fatalf("document mutated by rejected patch: v=%d content=%q", doc.Version, doc.Content)
	}
}

func TestSubmitPatch_EditorCollaboratorAllowed(t *testing.T) {
	svc, _ := newTestService(t)
	store := svc.store.(*MemoryStore)
	seedDoc(t, store, &entity.Document{
		ID: "doc1", Content: "ABCDE", Version: 1, CreatedBy: 1,
		Collaborators: []entity.Collaborator{{DocID: "doc1", UserID: 2, Role: entity.RoleEditor}},
	})

	res, err := svc.SubmitPatch(context.Background(), SubmitInput{
		DocID: "doc1", Patch: patch.Patch{Type: patch.KindDelete, Position: 0, Length: 1},
		ExpectedVersion: 1, AuthorID: 2,
	})
	if err != nil {
		t.Fatalf("editor submit error: %v", err)
	}
	if !res.Accepted || res.NewContent != "BCDE" {
		t.Fatalf("editor submit result: %+v", res)
	}
}

func TestSubmitPatch_UnknownDocument(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SubmitPatch(context.Background(), SubmitInput{
		DocID: "nope", Patch: patch.Patch{Type: patch.KindReplace, Content: "x"},
		ExpectedVersion: 1, AuthorID: 1,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSubmitPatch_InvalidPatchRejected(t *testing.T) {
	svc, store := newTestService(t)
	seedDoc(t, store, &entity.Document{ID: "doc1", Content: "ABCDE", Version: 1, CreatedBy: 1})

	_, err := svc.SubmitPatch(context.Background(), SubmitInput{
		DocID: "doc1", Patch: patch.Patch{Type: "merge"}, ExpectedVersion: 1, AuthorID: 1,
	})
	if !errors.Is(err, patch.ErrUnknownKind) {
		t.Fatalf("error = %v, want ErrUnknownKind", err)
	}
}

func TestSubscribe_PublicDocumentVisibleToAnyone(t *testing.T) {
	svc, store := newTestService(t)
	seedDoc(t, store, &entity.Document{ID: "doc1", Title: "open", Content: "hi", Version: 2, CreatedBy: 1, IsPublic: true})

	// U2 既不是创建者也不是协作者，但文档公开
	snap, err := svc.Subscribe(context.Background(), 2, "doc1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if snap.Content != "hi" || snap.Version != 2 || snap.Title != "open" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSubscribe_DeniedWithoutAccess(t *testing.T) {
	svc, store := newTestService(t)
	seedDoc(t, store, &entity.Document{ID: "doc1", Content: "secret", Version: 1, CreatedBy: 1})

	if _, err := svc.Subscribe(context.Background(), 2, "doc1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}
	if _, err := svc.Subscribe(context.Background(), 2, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSubscribe_AppendsAudit(t *testing.T) {
	svc, store := newTestService(t)
	seedDoc(t, store, &entity.Document{ID: "doc1", Content: "hi", Version: 1, CreatedBy: 7})

	if _, err := svc.Subscribe(context.Background(), 7, "doc1"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	audits := store.Audits()
	found := false
	for _, a := range audits {
		if a.Action == entity.ActionDocSubscribe && a.UserID == 7 && a.ResourceID == "doc1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no doc_subscribe audit entry, audits = %+v", audits)
	}
}

func TestCreateDocument(t *testing.T) {
	svc, store := newTestService(t)
	doc, err := svc.CreateDocument(context.Background(), 9, "notes")
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if doc.Version != 1 || doc.CreatedBy != 9 {
		t.Fatalf("created doc = %+v", doc)
	}
	loaded, err := store.LoadDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if loaded.Title != "notes" {
		t.Fatalf("title = %q", loaded.Title)
	}
}

func TestResolveLastWriteWins(t *testing.T) {
	older := VersionedState{Content: "old"}
	newer := VersionedState{Content: "new"}
	newer.Timestamp = older.Timestamp.Add(1)

	if got := ResolveLastWriteWins(newer, older); got.Content != "new" {
		t.Fatalf("client newer: got %q", got.Content)
	}
	if got := ResolveLastWriteWins(older, newer); got.Content != "new" {
		t.Fatalf("server newer: got %q", got.Content)
	}
}
