package patch

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindReplace Kind = "replace"
	KindInsert  Kind = "insert"
	KindDelete  Kind = "delete"
)

// Patch 是一次带标签的内容变更（三选一）：
// - replace: 用 Content 整体覆盖
// - insert:  在 Position 处插入 Content
// - delete:  从 Position 处删除 Length 个单位
// Position / Length 的计量单位统一为 Unicode 码点（rune），
// 与 PieceTable 内部的 []rune 切片一致，非 ASCII 内容也不会错位。
type Patch struct {
	Type     Kind   `json:"type"`
	Content  string `json:"content,omitempty"`
	Position int    `json:"position,omitempty"`
	Length   int    `json:"length,omitempty"`
}

var ErrUnknownKind = errors.New("unknown patch type")

func (p Patch) Validate() error {
	switch p.Type {
	case KindReplace, KindInsert, KindDelete:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Type)
	}
}

// Apply 把补丁应用到 content 上，返回新内容。
// 越界的 position/length 会被收敛到合法范围，绝不会破坏已有内容。
func Apply(content string, p Patch) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	pt := NewPieceTable(content)
	switch p.Type {
	case KindReplace:
		pt.Replace(p.Content)
	case KindInsert:
		pt.Insert(p.Position, p.Content)
	case KindDelete:
		pt.Delete(p.Position, p.Length)
	}
	return pt.String(), nil
}
