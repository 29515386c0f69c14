package conversation

// Role 消息角色
type Role string

const (
	// RoleUser 用户消息
	RoleUser Role = "user"
	// RoleAssistant AI 回复消息
	RoleAssistant Role = "assistant"
	// RoleSystem 系统提示消息
	RoleSystem Role = "system"
)

// EditRecord 单次编辑记录（仅追加，不覆盖原内容）
type EditRecord struct {
	Timestamp       int64  `json:"timestamp"`
	OriginalContent string `json:"originalContent"`
	EditedContent   string `json:"editedContent"`
	Reason          string `json:"reason,omitempty"`
}

// Message 会话消息实体
// 持久化后不可变，编辑通过 EditHistory 追加记录
type Message struct {
	ID           string         `json:"id"`
	Role         Role           `json:"role"`
	Content      string         `json:"content"`
	Timestamp    int64          `json:"timestamp"` // Unix 毫秒
	ParentNodeID string         `json:"parentNodeId,omitempty"`
	EditHistory  []EditRecord   `json:"editHistory,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CurrentContent 返回当前展示内容（有编辑记录时取最后一次编辑）
func (m *Message) CurrentContent() string {
	if n := len(m.EditHistory); n > 0 {
		return m.EditHistory[n-1].EditedContent
	}
	return m.Content
}

// ApplyEdit 追加一条编辑记录并更新展示内容
func (m *Message) ApplyEdit(edited, reason string, timestamp int64) {
	m.EditHistory = append(m.EditHistory, EditRecord{
		Timestamp:       timestamp,
		OriginalContent: m.CurrentContent(),
		EditedContent:   edited,
		Reason:          reason,
	})
	m.Content = edited
}

// ChatMessage 发送给生成能力的提示消息
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
