package ws

import (
	"sync"

	"syncServer/backend/internal/cache"
)

// Hub 进程级房间注册表：docID -> 房间内连接集合。
// 启动时显式构造，句柄传给 handler，不做任何全局隐式状态。
// 为什么房间里存的是连接而不是 userID：一个用户可开多个标签页/设备（多连接），
// 广播要逐连接发，不能只按 userID 发一次。
type Hub struct {
	// Redis 在线状态句柄。Hub 本身不"存"在线数据，
	// 只提供对外部存储的读写能力
	presence cache.PresenceCache
	// 读写锁保护 rooms，加入/离开房间、广播时都会先加锁
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除；重复调用无害
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// BroadcastToRoom 把消息投递给房间内除 except 以外的所有连接。
// except 传 nil 表示发给整个房间。每个连接自己的出站顺序是 FIFO，
// 跨连接、跨事件类型不保证任何顺序
func (h *Hub) BroadcastToRoom(docID string, except *Conn, msg OutboundMessage) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	// 锁外投递，避免慢连接拖住整个 Hub
	for _, c := range targets {
		c.SendMessage_Enqueue(msg)
	}
}

// RoomSize 房间当前连接数（测试断言用）
func (h *Hub) RoomSize(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}
