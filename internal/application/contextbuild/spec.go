package contextbuild

import (
	"fmt"

	"github.com/icsys/backend/internal/domain/conversation"
)

// 相关性打分权重，所有意图共用一组
var defaultScoring = conversation.ScoringWeights{
	Sim:        0.35,
	Cover:      0.25,
	Importance: 0.2,
	Recency:    0.2,
	Dup:        0.1,
}

// BuildSpec 由意图派生上下文需求规格（CRS）
// 规格先于取数生成，之后只读
func (b *Builder) BuildSpec(intent *conversation.Intent, sessionID string) *conversation.ContextSpec {
	anchorID := intent.AnchorNodeID
	if anchorID == "" {
		anchorID = intent.ParentNodeID
	}

	return &conversation.ContextSpec{
		IntentID:    intent.ID,
		SessionID:   sessionID,
		Required:    deriveRequired(intent),
		Constraints: intent.Struct.Constraints,
		TimeScope:   "session",
		MemoryTypes: intent.ContextHints.MemoryTypes,
		HistoryPolicy: conversation.HistoryPolicy{
			IncludeRecent: intent.ContextHints.IncludeRecentHistory,
			AnchorNodeID:  anchorID,
			MaxTurns:      10,
		},
		Budget: conversation.Budget{
			MaxTokens:   b.cfg.MaxTokens,
			MaxMemories: b.cfg.MaxMemories,
		},
		Scoring: defaultScoring,
	}
}

// deriveRequired 按意图类型给出必需的上下文要素，附带主题标记
func deriveRequired(intent *conversation.Intent) []string {
	var required []string
	switch intent.Type {
	case conversation.IntentTask:
		required = []string{"task_state", "project_context", "related_tasks"}
	case conversation.IntentQuestion:
		required = []string{"relevant_facts", "recent_history"}
	case conversation.IntentFeedback, conversation.IntentClarification:
		required = []string{"recent_history"}
	case conversation.IntentInterrupt:
		required = []string{"running_tasks", "recent_history"}
	default:
		required = []string{"recent_history"}
	}

	if intent.Topic != "" {
		required = append(required, fmt.Sprintf("topic:%s", intent.Topic))
	}
	return required
}
