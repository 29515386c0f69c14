package memory

// 记忆类型
const (
	TypeConversation = "conversation"
	TypeTask         = "task"
	TypeProject      = "project"
	TypeCode         = "code"
	TypeKnowledge    = "knowledge"
)

// Memory 长期记忆条目
type Memory struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Store 记忆日志存储（按 用户+类型+时间 键序）
type Store interface {
	// SaveMemory 追加一条记忆
	SaveMemory(userID string, m *Memory) error

	// UserMemories 返回用户记忆，memType 为空表示不过滤类型
	UserMemories(userID, memType string) ([]Memory, error)
}

// ScoredMemory 带相似度得分的记忆
type ScoredMemory struct {
	Memory
	Similarity float64 `json:"similarity"`
}

// VectorIndex 记忆向量索引
// 实现可以是进程内余弦扫描，也可以是外部向量数据库
type VectorIndex interface {
	// Add 写入一条向量及其关联记忆
	Add(id string, vector []float32, m *Memory) error

	// SearchSimilar 按余弦相似度返回最相近的 limit 条
	SearchSimilar(vector []float32, limit int) ([]ScoredMemory, error)
}
