package conversation

// 意图类型
const (
	IntentQuestion      = "question"
	IntentTask          = "task"
	IntentFeedback      = "feedback"
	IntentClarification = "clarification"
	IntentInterrupt     = "interrupt"
)

// 紧急程度
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Evidence 意图判定依据片段
type Evidence struct {
	Source string `json:"source"`
	Span   string `json:"span"`
}

// IntentStruct 结构化意图（目标、约束、实体等）
type IntentStruct struct {
	Goal               string     `json:"goal"`
	Constraints        []string   `json:"constraints"`
	Entities           []string   `json:"entities"`
	PlanHints          []string   `json:"planHints"`
	Evidence           []Evidence `json:"evidence"`
	Confidence         float64    `json:"confidence"`
	UncertaintyReasons []string   `json:"uncertaintyReasons"`
}

// TimeRange 记忆检索时间范围
type TimeRange struct {
	Hours int `json:"hours,omitempty"`
	Days  int `json:"days,omitempty"`
}

// ContextHints 上下文构建提示（声明式策略）
type ContextHints struct {
	IncludeUserProfile      bool      `json:"shouldIncludeUserProfile"`
	IncludeRecentHistory    bool      `json:"shouldIncludeRecentHistory"`
	IncludeRelatedMemories  bool      `json:"shouldIncludeRelatedMemories"`
	IncludeEnvironmentState bool      `json:"shouldIncludeEnvironmentState"`
	MemoryTypes             []string  `json:"memoryTypes"`
	TimeRange               TimeRange `json:"timeRange"`
}

// Intent 归一化后的用户意图
// 每条入站消息由意图引擎创建一次，创建后不可变
type Intent struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	SessionID      string       `json:"sessionId,omitempty"`
	Type           string       `json:"intent"`
	Topic          string       `json:"topic"`
	Urgency        string       `json:"urgency"`
	RequiresAction bool         `json:"requiresAction"`
	RelatedTopics  []string     `json:"relatedTopics"`
	Sentiment      string       `json:"sentiment"`
	Confidence     float64      `json:"confidence"`
	Struct         IntentStruct `json:"intentStruct"`
	UserInput      string       `json:"userInput"`
	Timestamp      int64        `json:"timestamp"`
	// ParentNodeID 新消息挂接的父节点（用户从某节点发起分支时设置）
	ParentNodeID string `json:"parentNodeId,omitempty"`
	// AnchorNodeID 上下文回溯锚点，为空表示从最新消息延续主线
	AnchorNodeID string       `json:"anchorNodeId,omitempty"`
	ContextHints ContextHints `json:"contextHints"`
}

// IntentMeta 意图元信息（结构化意图与上下文提示的持久化快照）
type IntentMeta struct {
	Struct       IntentStruct `json:"intentStruct"`
	Confidence   float64      `json:"confidence"`
	ContextHints ContextHints `json:"contextHints"`
	SavedAt      int64        `json:"savedAt"`
}
