package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func newTestPresence(t *testing.T) (PresenceCache, *redis.Client) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	// 若 Redis 未启动则跳过
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	return NewRedisPresence(rdb), rdb
}

// 每个测试用独立的 docID，避免脏数据互相干扰
func testDocID(t *testing.T) string {
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestPresence_AddThenListMembers(t *testing.T) {
	p, rdb := newTestPresence(t)
	ctx := context.Background()
	docID := testDocID(t)
	defer rdb.Del(ctx, roomKey(docID), namesKey(docID))

	if err := p.AddMember(ctx, docID, 1, "alice", time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	if err := p.AddMember(ctx, docID, 2, "bob", time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}

	members, err := p.GetAliveMembersWithNames(ctx, docID)
	if err != nil {
		t.Fatalf("GetAliveMembersWithNames error: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2: %+v", len(members), members)
	}
	names := map[uint64]string{}
	for _, m := range members {
		names[m.UserID] = m.Username
	}
	if names[1] != "alice" || names[2] != "bob" {
		t.Fatalf("names = %v", names)
	}
}

func TestPresence_ExpiredMemberSweptOut(t *testing.T) {
	p, rdb := newTestPresence(t)
	ctx := context.Background()
	docID := testDocID(t)
	defer rdb.Del(ctx, roomKey(docID), namesKey(docID))

	// score=expireAt 已经过去，读取时的 Lua 清理应把它剔除
	if err := p.AddMember(ctx, docID, 1, "alice", -time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	if err := p.AddMember(ctx, docID, 2, "bob", time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}

	members, err := p.GetAliveMembersWithNames(ctx, docID)
	if err != nil {
		t.Fatalf("GetAliveMembersWithNames error: %v", err)
	}
	if len(members) != 1 || members[0].UserID != 2 {
		t.Fatalf("got %+v, want only bob", members)
	}
	// 名字表里的过期条目也要被清掉
	if n, _ := rdb.HLen(ctx, namesKey(docID)).Result(); n != 1 {
		t.Fatalf("names hash len = %d, want 1", n)
	}
}

func TestPresence_RemoveMemberClearsCursor(t *testing.T) {
	p, rdb := newTestPresence(t)
	ctx := context.Background()
	docID := testDocID(t)
	defer rdb.Del(ctx, roomKey(docID), namesKey(docID))

	if err := p.AddMember(ctx, docID, 1, "alice", time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	if err := p.SetCursor(ctx, docID, 1, []byte(`{"line":3,"col":7}`), time.Minute); err != nil {
		t.Fatalf("SetCursor error: %v", err)
	}
	got, err := p.GetCursor(ctx, docID, 1)
	if err != nil {
		t.Fatalf("GetCursor error: %v", err)
	}
	if string(got) != `{"line":3,"col":7}` {
		t.Fatalf("cursor = %s", got)
	}

	if err := p.RemoveMember(ctx, docID, 1); err != nil {
		t.Fatalf("RemoveMember error: %v", err)
	}
	members, err := p.GetAliveMembersWithNames(ctx, docID)
	if err != nil {
		t.Fatalf("GetAliveMembersWithNames error: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("got %+v after remove, want none", members)
	}
	if _, err := p.GetCursor(ctx, docID, 1); err != redis.Nil {
		t.Fatalf("cursor after remove: err = %v, want redis.Nil", err)
	}
}

func TestPresence_AddMemberRefreshesTTL(t *testing.T) {
	p, rdb := newTestPresence(t)
	ctx := context.Background()
	docID := testDocID(t)
	defer rdb.Del(ctx, roomKey(docID), namesKey(docID))

	if err := p.AddMember(ctx, docID, 1, "alice", time.Second); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	before, err := rdb.ZScore(ctx, roomKey(docID), "1").Result()
	if err != nil {
		t.Fatalf("ZScore error: %v", err)
	}

	// 续期即重复 AddMember，score 应后移
	if err := p.AddMember(ctx, docID, 1, "alice", time.Hour); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	after, err := rdb.ZScore(ctx, roomKey(docID), "1").Result()
	if err != nil {
		t.Fatalf("ZScore error: %v", err)
	}
	if after <= before {
		t.Fatalf("score not refreshed: before=%f after=%f", before, after)
	}
}
