package conversation

// MessageLog 会话消息日志（追加写，按 会话+时间+id 键序）
type MessageLog interface {
	// SaveMessage 追加一条消息
	SaveMessage(sessionID string, msg *Message) error

	// SessionMessages 按时间顺序返回会话最近 limit 条消息
	SessionMessages(sessionID string, limit int) ([]Message, error)

	// FindMessage 按 id 查找消息，不存在返回 (nil, nil)
	FindMessage(sessionID, messageID string) (*Message, error)

	// UpdateMessage 覆盖写入一条已存在的消息（仅用于编辑路径）
	UpdateMessage(sessionID string, msg *Message) error
}

// GraphStore 画布图快照存储（每会话单例记录）
type GraphStore interface {
	SaveGraph(sessionID string, graph *CanvasGraph) error

	// GetGraph 读取快照，不存在返回 (nil, nil)
	GetGraph(sessionID string) (*CanvasGraph, error)
}

// IntentArchive 意图相关单例记录存储（元信息 / CRS / 上下文快照）
type IntentArchive interface {
	SaveIntentMeta(intentID string, meta *IntentMeta) error
	GetIntentMeta(intentID string) (*IntentMeta, error)

	SaveContextSpec(intentID string, spec *ContextSpec) error
	GetContextSpec(intentID string) (*ContextSpec, error)

	// SaveIntentContext 保存构建完成的上下文载荷快照（任意 JSON 结构）
	SaveIntentContext(intentID string, context any) error
	GetIntentContext(intentID string, out any) (bool, error)
}

// IntentRow 意图的关系库行（结构化过滤用）
type IntentRow struct {
	ID            string
	SessionID     string
	UserMessageID string
	IntentType    string
	Topic         string
	Urgency       string
	RelatedTopics []string
	Confidence    float64
	CreatedAt     int64
}

// IntentRepository 意图关系库仓储
type IntentRepository interface {
	Save(row *IntentRow) error

	// FindByID 不存在返回 (nil, nil)
	FindByID(id string) (*IntentRow, error)

	FindBySession(sessionID string, limit int) ([]*IntentRow, error)
}
