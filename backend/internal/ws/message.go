package ws

import (
	"encoding/json"

	"syncServer/backend/internal/patch"
)

// ClientMessage 入站消息统一信封，按 Type 分发
type ClientMessage struct {
	Type      string          `json:"type"`
	DocID     string          `json:"docId,omitempty"`
	Patch     patch.Patch     `json:"patch,omitempty"`
	Version   uint64          `json:"version,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

// SnapshotMessage 新订阅者的完整基线，只发给订阅者本人。
// 必须先于它可能收到的任何补丁广播入队
type SnapshotMessage struct {
	Type    string `json:"type"` // 固定 "snapshot"
	DocID   string `json:"docId"`
	Content string `json:"content"`
	Version uint64 `json:"version"`
	Title   string `json:"title"`
}

type UserJoinedMessage struct {
	Type     string `json:"type"` // 固定 "user_joined"
	UserID   uint64 `json:"userId"`
	UserName string `json:"userName"`
}

type UserLeftMessage struct {
	Type     string `json:"type"` // 固定 "user_left"
	UserID   uint64 `json:"userId"`
	UserName string `json:"userName"`
}

// PatchAckMessage 只发给提交者：补丁已被接受
type PatchAckMessage struct {
	Type     string `json:"type"` // 固定 "patch_ack"
	ClientID string `json:"clientId"`
	DocID    string `json:"docId"`
	Version  uint64 `json:"version"` // 应用后的最新版本
	Accepted bool   `json:"accepted"`
}

// MismatchMessage 只发给提交者：版本过期，携带服务端当前真值。
// 不是错误通道 —— 客户端应对齐后重提，而不是退避重试
type MismatchMessage struct {
	Type           string `json:"type"` // 固定 "mismatch"
	ClientID       string `json:"clientId"`
	DocID          string `json:"docId"`
	CurrentVersion uint64 `json:"currentVersion"`
	CurrentContent string `json:"currentContent"`
}

// PatchBroadcastMessage 广播给房间内其他连接的已应用补丁。
// 只带操作本身不带全文：接收方默认已在 version-1，落后的客户端
// 自己重新订阅拿快照，服务端不补发缺口
type PatchBroadcastMessage struct {
	Type       string      `json:"type"` // 固定 "patch"
	DocID      string      `json:"docId"`
	Patch      patch.Patch `json:"patch"`
	Version    uint64      `json:"version"`
	Author     uint64      `json:"author"`
	AuthorName string      `json:"authorName"`
}

type PresenceUpdateMessage struct {
	Type      string          `json:"type"` // 固定 "presence_update"
	UserID    uint64          `json:"userId"`
	UserName  string          `json:"userName"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

type MembersMessage struct {
	Type    string           `json:"type"` // 固定 "show_alive_members"
	DocID   string           `json:"docId"`
	Members []PresenceMember `json:"members"`
}

// ErrorMessage 只发给发送者的失败通道
type ErrorMessage struct {
	Type     string `json:"type"` // 固定 "error"
	Message  string `json:"message"`
	ClientID string `json:"clientId,omitempty"`
}

type FeedbackMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// 隐式实现 OutboundMessage 接口
func (m SnapshotMessage) MessageType() string       { return m.Type }
func (m UserJoinedMessage) MessageType() string     { return m.Type }
func (m UserLeftMessage) MessageType() string       { return m.Type }
func (m PatchAckMessage) MessageType() string       { return m.Type }
func (m MismatchMessage) MessageType() string       { return m.Type }
func (m PatchBroadcastMessage) MessageType() string { return m.Type }
func (m PresenceUpdateMessage) MessageType() string { return m.Type }
func (m MembersMessage) MessageType() string        { return m.Type }
func (m ErrorMessage) MessageType() string          { return m.Type }
func (m FeedbackMessage) MessageType() string       { return m.Type }
