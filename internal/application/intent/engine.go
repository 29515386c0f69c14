package intent

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/llm"
	"github.com/icsys/backend/internal/domain/memory"
	"github.com/icsys/backend/internal/domain/task"
	"github.com/icsys/backend/internal/infrastructure/log"
)

// SessionContext 分析时的会话上下文
type SessionContext struct {
	SessionID    string
	ParentNodeID string
}

// Engine 意图引擎
// 对分类器的原始输出做归一化，保证下游拿到的意图字段齐全且类型正确
type Engine struct {
	llm      llm.Service
	memories memory.Store
	tasks    task.Repository
	logger   *slog.Logger
}

// NewEngine 创建意图引擎
func NewEngine(llmService llm.Service, memories memory.Store, tasks task.Repository) *Engine {
	return &Engine{
		llm:      llmService,
		memories: memories,
		tasks:    tasks,
		logger:   log.NewModuleLogger("intent", "engine"),
	}
}

// Analyze 分析用户输入，返回归一化且不可变的意图
// 分类失败时回退到确定性的默认意图，不向上抛错
func (e *Engine) Analyze(ctx context.Context, userID, userInput string, sc SessionContext) (*conversation.Intent, error) {
	analysisContext := e.buildAnalysisContext(userID, sc)

	raw, err := e.llm.AnalyzeIntent(ctx, userInput, analysisContext)
	if err != nil {
		e.logger.Warn("intent classification failed, using fallback",
			"user_id", userID,
			"error", err,
		)
		raw = nil
	}

	intent := e.normalize(raw, userInput)
	intent.ID = uuid.New().String()
	intent.UserID = userID
	intent.SessionID = sc.SessionID
	intent.UserInput = userInput
	intent.Timestamp = time.Now().UnixMilli()
	intent.ParentNodeID = sc.ParentNodeID
	intent.AnchorNodeID = sc.ParentNodeID
	intent.ContextHints = e.extractContextHints(intent)

	return intent, nil
}

// buildAnalysisContext 收集给分类器的背景信息（最近记忆与任务）
// 收集失败只降级，不影响分析
func (e *Engine) buildAnalysisContext(userID string, sc SessionContext) map[string]any {
	analysisContext := map[string]any{
		"sessionContext": map[string]any{
			"sessionId": sc.SessionID,
		},
	}

	if mems, err := e.memories.UserMemories(userID, ""); err == nil {
		if len(mems) > 5 {
			mems = mems[len(mems)-5:]
		}
		analysisContext["memories"] = mems
	}

	if recent, err := e.tasks.FindRecentByUser(userID, 10); err == nil {
		summaries := make([]map[string]any, 0, len(recent))
		for _, t := range recent {
			summaries = append(summaries, map[string]any{
				"type":   t.Type,
				"status": t.Status,
			})
		}
		analysisContext["recentTasks"] = summaries
	}

	return analysisContext
}

// normalize 归一化分类器原始输出
// 对同一输入幂等：归一化后的值再走一遍不会改变
func (e *Engine) normalize(raw map[string]any, userInput string) *conversation.Intent {
	intent := &conversation.Intent{
		Type:          asText(raw["intent"], conversation.IntentQuestion),
		Topic:         asText(raw["topic"], truncate(userInput, 50)),
		Urgency:       asText(raw["urgency"], conversation.UrgencyMedium),
		RelatedTopics: asStringArray(raw["relatedTopics"]),
		Sentiment:     asText(raw["sentiment"], "neutral"),
		Confidence:    asNumber(raw["confidence"], 0.5),
	}

	if b, ok := raw["requiresAction"].(bool); ok {
		intent.RequiresAction = b
	} else {
		intent.RequiresAction = intent.Type != conversation.IntentQuestion
	}

	intent.Struct = e.normalizeStruct(raw["intentStruct"], intent, userInput)
	return intent
}

// normalizeStruct 归一化结构化意图，goal 依次回退：struct.goal → topic → 输入前缀
func (e *Engine) normalizeStruct(rawStruct any, intent *conversation.Intent, userInput string) conversation.IntentStruct {
	m, _ := rawStruct.(map[string]any)

	goalFallback := intent.Topic
	if goalFallback == "" {
		goalFallback = truncate(userInput, 50)
	}

	s := conversation.IntentStruct{
		Goal:               asText(m["goal"], goalFallback),
		Constraints:        asStringArray(m["constraints"]),
		Entities:           asStringArray(m["entities"]),
		PlanHints:          asStringArray(m["planHints"]),
		Evidence:           asEvidence(m["evidence"]),
		Confidence:         asNumber(m["confidence"], intent.Confidence),
		UncertaintyReasons: asStringArray(m["uncertaintyReasons"]),
	}

	if len(s.Evidence) == 0 {
		s.Evidence = []conversation.Evidence{
			{Source: "user_input", Span: truncate(userInput, 100)},
		}
	}
	return s
}

// extractContextHints 由意图派生上下文构建策略
func (e *Engine) extractContextHints(intent *conversation.Intent) conversation.ContextHints {
	return conversation.ContextHints{
		IncludeUserProfile:      true,
		IncludeRecentHistory:    intent.Type != conversation.IntentInterrupt,
		IncludeRelatedMemories:  true,
		IncludeEnvironmentState: intent.Urgency == conversation.UrgencyHigh,
		MemoryTypes:             relevantMemoryTypes(intent.Type),
		TimeRange:               relevantTimeRange(intent.Urgency),
	}
}

func relevantMemoryTypes(intentType string) []string {
	switch intentType {
	case conversation.IntentQuestion:
		return []string{memory.TypeKnowledge, memory.TypeConversation}
	case conversation.IntentTask:
		return []string{memory.TypeTask, memory.TypeProject, memory.TypeCode}
	case conversation.IntentFeedback:
		return []string{memory.TypeConversation, memory.TypeTask}
	case conversation.IntentClarification:
		return []string{memory.TypeConversation}
	case conversation.IntentInterrupt:
		return []string{memory.TypeTask, memory.TypeConversation}
	default:
		return []string{memory.TypeConversation}
	}
}

func relevantTimeRange(urgency string) conversation.TimeRange {
	switch urgency {
	case conversation.UrgencyHigh:
		return conversation.TimeRange{Hours: 1}
	case conversation.UrgencyLow:
		return conversation.TimeRange{Days: 7}
	default:
		return conversation.TimeRange{Hours: 24}
	}
}

// asText 返回去除首尾空白后的非空字符串，否则用 fallback
func asText(v any, fallback string) string {
	if s, ok := v.(string); ok {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// asStringArray 空值返回空切片，标量包装为单元素切片
func asStringArray(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{val}
	default:
		return []string{}
	}
}

// asNumber 接受数字或可解析的数字字符串，否则用 fallback
func asNumber(v any, fallback float64) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func asEvidence(v any) []conversation.Evidence {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]conversation.Evidence, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, conversation.Evidence{
			Source: asText(m["source"], "user_input"),
			Span:   asText(m["span"], ""),
		})
	}
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
