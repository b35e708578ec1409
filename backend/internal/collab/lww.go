package collab

import "time"

// VersionedState 用于离线合并的一侧状态
type VersionedState struct {
	Content   string
	Version   uint64
	Timestamp time.Time
}

// ResolveLastWriteWins 备选冲突策略：时间戳新的一侧整体获胜。
// 注意：补丁引擎本身并不调用它 —— 引擎遇到版本冲突只退回 Conflicted，
// 由客户端对齐后重提。这里留给离线同步等场景按需选用。
func ResolveLastWriteWins(client, server VersionedState) VersionedState {
	if client.Timestamp.After(server.Timestamp) {
		return client
	}
	return server
}
