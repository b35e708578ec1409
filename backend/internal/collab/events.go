package collab

import (
	"time"

	"syncServer/backend/internal/patch"
)

// DocPatchEvent 提交成功后对外发布的事件（Kafka），与事务解耦、尽力送达。
// 审计的权威记录在 MySQL 审计表里，这条只是给下游消费的镜像。
type DocPatchEvent struct {
	EventType   string      `json:"eventType"` // 固定 "PATCH_APPLIED"
	DocID       string      `json:"docId"`
	Version     uint64      `json:"version"` // 服务端已应用后的最新版本
	AuthorID    uint64      `json:"authorId"`
	ClientID    string      `json:"clientId"`
	BaseVersion uint64      `json:"baseVersion"` // 客户端提交时声明的版本
	Patch       patch.Patch `json:"patch"`
	AppliedAt   time.Time   `json:"appliedAt"`
}
