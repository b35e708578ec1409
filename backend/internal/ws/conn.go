package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"syncServer/backend/internal/collab"
)

// presenceTTL 在线状态的逻辑过期时间，heartbeat 负责续期
const presenceTTL = 600 * time.Second

// submitTimeout 单次补丁提交（含信号量等待 + 事务）的上限
const submitTimeout = 2 * time.Second

// Conn 一条已认证的 WebSocket 连接。
// 身份（userID/userName）在门卫校验时绑定，连接存续期内不可变。
// rooms 是本连接已加入的文档房间集合，只在 readLoop 这个 goroutine 里改，
// 不需要加锁；跨连接的成员关系归 Hub 管。
type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	userID   uint64
	username string
	rooms    map[string]struct{}
	// send 是本连接的出站 FIFO 队列，writeLoop 单独消费。
	// 退出房间和关闭 send 之间有窗口：广播方可能已在锁外拿到本连接的引用，
	// 所以入队和关闭都要过 sendMu + sendClosed，杜绝向已关闭通道发送
	send       chan OutboundMessage
	sendMu     sync.Mutex
	sendClosed bool
	// 协作引擎服务
	svc *collab.Service
	// 信号量控制在途补丁提交数
	sem *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string, svc *collab.Service, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		username: username,
		rooms:    make(map[string]struct{}),
		send:     make(chan OutboundMessage, 32),
		svc:      svc,
		sem:      sem,
	}
}

func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		// 连接已收尾，迟到的广播静默丢弃
		return
	}
	select {
	case c.send <- msg:
	default:
		// 队列满则丢弃：落后太多的客户端应重新订阅拿快照
	}
}

// shutdown 断连收尾：先退出所有房间，再在锁内关闭出站队列。
// 关闭前已持 sendMu，正在锁外投递的广播要么赶在关闭前入队，
// 要么看到 sendClosed 直接丢弃，不会打到已关闭的通道上
func (c *Conn) shutdown(ctx context.Context) {
	c.cleanup(ctx)
	c.sendMu.Lock()
	c.sendClosed = true
	close(c.send)
	c.sendMu.Unlock()
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.shutdown(ctx)
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (user=%d): %v", c.userID, err)
			return
		}
		switch msg.Type {
		case "subscribe":
			c.handleSubscribe(ctx, msg.DocID)

		case "unsubscribe":
			// 幂等，无需鉴权，不回复
			c.handleUnsubscribe(ctx, msg.DocID)

		case "patch":
			c.handlePatch(ctx, msg)

		case "presence_update":
			c.handlePresenceUpdate(ctx, msg)

		case "heartbeat":
			// 续期本连接在所有已加入房间里的在线状态
			for docID := range c.rooms {
				if err := c.hub.presence.AddMember(ctx, docID, c.userID, c.username, presenceTTL); err != nil {
					log.Printf("refresh presence error (user=%d, doc=%s): %v", c.userID, docID, err)
				}
			}
			c.SendMessage_Enqueue(FeedbackMessage{Type: "feedback", Content: "Heartbeat received"})

		case "show_alive_members":
			members, err := c.hub.presence.GetAliveMembersWithNames(ctx, msg.DocID)
			if err != nil {
				log.Printf("get alive members error (doc=%s): %v", msg.DocID, err)
			}
			out := make([]PresenceMember, len(members))
			for i, m := range members {
				out[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
			}
			c.SendMessage_Enqueue(MembersMessage{Type: "show_alive_members", DocID: msg.DocID, Members: out})

		default:
			// 忽略未知类型，回一条提示
			c.SendMessage_Enqueue(FeedbackMessage{Type: "ignored", Content: "Unknown message type"})
		}
	}
}

// handleSubscribe 订阅流程，顺序是硬性要求：
// 快照先入自己的 FIFO → 加入房间 → 广播 user_joined。
// 这样任何后续补丁广播都排在快照之后，订阅者的本地版本基线必然有效。
func (c *Conn) handleSubscribe(ctx context.Context, docID string) {
	snap, err := c.svc.Subscribe(ctx, c.userID, docID)
	if err != nil {
		if errors.Is(err, collab.ErrNotFound) || errors.Is(err, collab.ErrForbidden) {
			// 不区分"不存在"和"没权限"，避免泄露文档是否存在
			c.SendMessage_Enqueue(ErrorMessage{Type: "error", Message: "Document not found or access denied"})
		} else {
			log.Printf("subscribe error (user=%d, doc=%s): %v", c.userID, docID, err)
			c.SendMessage_Enqueue(ErrorMessage{Type: "error", Message: "Failed to subscribe to document"})
		}
		return
	}

	c.SendMessage_Enqueue(SnapshotMessage{
		Type:    "snapshot",
		DocID:   snap.DocID,
		Content: snap.Content,
		Version: snap.Version,
		Title:   snap.Title,
	})
	c.hub.Join(docID, c)
	c.rooms[docID] = struct{}{}
	c.hub.BroadcastToRoom(docID, c, UserJoinedMessage{Type: "user_joined", UserID: c.userID, UserName: c.username})

	if err := c.hub.presence.AddMember(ctx, docID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("add presence error (user=%d, doc=%s): %v", c.userID, docID, err)
	}
}

func (c *Conn) handleUnsubscribe(ctx context.Context, docID string) {
	c.hub.Leave(docID, c)
	delete(c.rooms, docID)
	if err := c.hub.presence.RemoveMember(ctx, docID, c.userID); err != nil {
		log.Printf("remove presence error (user=%d, doc=%s): %v", c.userID, docID, err)
	}
}

func (c *Conn) handlePatch(ctx context.Context, msg ClientMessage) {
	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	if err := c.sem.Acquire(submitCtx); err != nil {
		c.SendMessage_Enqueue(ErrorMessage{Type: "error", Message: err.Error(), ClientID: msg.ClientID})
		return
	}
	defer c.sem.Release()

	res, err := c.svc.SubmitPatch(submitCtx, collab.SubmitInput{
		DocID:           msg.DocID,
		Patch:           msg.Patch,
		ExpectedVersion: msg.Version,
		AuthorID:        c.userID,
		ClientID:        msg.ClientID,
	})
	if err != nil {
		// Rejected：类型化错误给出明确文案，持久层故障统一兜底、不漏内部细节
		switch {
		case errors.Is(err, collab.ErrNotFound):
			c.SendMessage_Enqueue(ErrorMessage{Type: "error", Message: "Document not found", ClientID: msg.ClientID})
		case errors.Is(err, collab.ErrForbidden):
			c.SendMessage_Enqueue(ErrorMessage{Type: "error", Message: "No edit permission for this document", ClientID: msg.ClientID})
		default:
			log.Printf("patch error (user=%d, doc=%s): %v", c.userID, msg.DocID, err)
			c.SendMessage_Enqueue(ErrorMessage{Type: "error", Message: "Failed to apply patch", ClientID: msg.ClientID})
		}
		return
	}

	if !res.Accepted {
		// Conflicted：只发给提交者，不广播，也不算错误
		c.SendMessage_Enqueue(MismatchMessage{
			Type:           "mismatch",
			ClientID:       msg.ClientID,
			DocID:          msg.DocID,
			CurrentVersion: res.CurrentVersion,
			CurrentContent: res.CurrentContent,
		})
		return
	}

	c.SendMessage_Enqueue(PatchAckMessage{
		Type:     "patch_ack",
		ClientID: msg.ClientID,
		DocID:    msg.DocID,
		Version:  res.NewVersion,
		Accepted: true,
	})
	// 广播只带操作不带全文，房间内其他人默认已在 version-1
	c.hub.BroadcastToRoom(msg.DocID, c, PatchBroadcastMessage{
		Type:       "patch",
		DocID:      msg.DocID,
		Patch:      msg.Patch,
		Version:    res.NewVersion,
		Author:     c.userID,
		AuthorName: c.username,
	})
}

func (c *Conn) handlePresenceUpdate(ctx context.Context, msg ClientMessage) {
	// 只对已加入的房间生效；无 ack
	if _, ok := c.rooms[msg.DocID]; !ok {
		return
	}
	if raw, err := json.Marshal(map[string]json.RawMessage{"cursor": msg.Cursor, "selection": msg.Selection}); err == nil {
		if err := c.hub.presence.SetCursor(ctx, msg.DocID, c.userID, raw, presenceTTL); err != nil {
			log.Printf("set cursor error (user=%d, doc=%s): %v", c.userID, msg.DocID, err)
		}
	}
	c.hub.BroadcastToRoom(msg.DocID, c, PresenceUpdateMessage{
		Type:      "presence_update",
		UserID:    c.userID,
		UserName:  c.username,
		Cursor:    msg.Cursor,
		Selection: msg.Selection,
	})
}

// cleanup 断连收尾：逐房间退出并广播 user_left，每个房间恰好一条。
// 房间之间的相对顺序不作保证
func (c *Conn) cleanup(ctx context.Context) {
	for docID := range c.rooms {
		c.hub.Leave(docID, c)
		c.hub.BroadcastToRoom(docID, c, UserLeftMessage{Type: "user_left", UserID: c.userID, UserName: c.username})
		if err := c.hub.presence.RemoveMember(ctx, docID, c.userID); err != nil {
			log.Printf("remove presence error (user=%d, doc=%s): %v", c.userID, docID, err)
		}
	}
	c.rooms = make(map[string]struct{})
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的出站消息
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
