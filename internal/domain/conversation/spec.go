package conversation

// HistoryPolicy 历史回溯策略
type HistoryPolicy struct {
	IncludeRecent bool   `json:"includeRecent"`
	AnchorNodeID  string `json:"anchorNodeId,omitempty"`
	MaxTurns      int    `json:"maxTurns"`
}

// Budget 上下文预算
type Budget struct {
	MaxTokens   int `json:"maxTokens"`
	MaxMemories int `json:"maxMemories"`
}

// ScoringWeights 相关性打分权重
type ScoringWeights struct {
	Sim        float64 `json:"wSim"`
	Cover      float64 `json:"wCover"`
	Importance float64 `json:"wImportance"`
	Recency    float64 `json:"wRecency"`
	Dup        float64 `json:"wDup"`
}

// ContextSpec 上下文需求规格（CRS）
// 描述一次意图的上下文构建需要满足哪些条件，创建后只读
type ContextSpec struct {
	IntentID      string         `json:"intentId"`
	SessionID     string         `json:"sessionId"`
	Required      []string       `json:"required"`
	Constraints   []string       `json:"constraints"`
	TimeScope     string         `json:"timeScope"`
	MemoryTypes   []string       `json:"memoryTypes"`
	HistoryPolicy HistoryPolicy  `json:"historyPolicy"`
	Budget        Budget         `json:"budget"`
	Scoring       ScoringWeights `json:"scoring"`
	SavedAt       int64          `json:"savedAt,omitempty"`
}
