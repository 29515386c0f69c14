package contextbuild

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/memory"
	"github.com/icsys/backend/internal/domain/session"
)

// BuiltContext 装配完成的上下文：可直接发送的消息序列 + 元信息
type BuiltContext struct {
	Messages []conversation.ChatMessage `json:"messages"`
	Metadata Metadata                   `json:"metadata"`
}

// Metadata 上下文元信息
type Metadata struct {
	IntentID           string `json:"intentId"`
	SessionID          string `json:"sessionId"`
	UserID             string `json:"userId"`
	ContextSize        int    `json:"contextSize"`
	TokenEstimate      int    `json:"tokenEstimate"`
	IntentType         string `json:"intentType"`
	IntentTopic        string `json:"intentTopic"`
	HasCompiledContext bool   `json:"hasCompiledContext"`
}

type composeInput struct {
	Intent   *conversation.Intent
	Spec     *conversation.ContextSpec
	Profile  *session.UserProfile
	Session  *session.Session
	Memories []memory.Memory
	Recent   []conversation.Message
	Env      *EnvironmentState
	Tasks    []TaskSummary
	Compiled string
}

// compose 按固定顺序组装消息序列：
// 系统提示 → 结构化意图 → CRS → 编译摘要 → 相关记忆 → 历史片段 → 当前输入
func (b *Builder) compose(in *composeInput) *BuiltContext {
	messages := []conversation.ChatMessage{
		{Role: conversation.RoleSystem, Content: b.systemPrompt(in)},
	}

	if directive := formatIntentDirective(in.Intent); directive != "" {
		messages = append(messages, conversation.ChatMessage{Role: conversation.RoleSystem, Content: directive})
	}

	if specDirective := formatContextSpec(in.Spec); specDirective != "" {
		messages = append(messages, conversation.ChatMessage{Role: conversation.RoleSystem, Content: specDirective})
	}

	if in.Compiled != "" {
		messages = append(messages, conversation.ChatMessage{Role: conversation.RoleSystem, Content: in.Compiled})
	}

	if len(in.Memories) > 0 {
		var sb strings.Builder
		sb.WriteString("[Relevant Historical Memories]")
		for _, m := range in.Memories {
			sb.WriteString("\n- ")
			sb.WriteString(memoryLine(m))
		}
		messages = append(messages, conversation.ChatMessage{Role: conversation.RoleSystem, Content: sb.String()})
	}

	messages = appendHistory(messages, in.Recent, in.Intent.UserInput)

	contextSize := 0
	for _, m := range messages {
		contextSize += len(m.Content)
	}

	return &BuiltContext{
		Messages: messages,
		Metadata: Metadata{
			IntentID:           in.Intent.ID,
			SessionID:          in.Session.ID,
			UserID:             in.Profile.ID,
			ContextSize:        contextSize,
			TokenEstimate:      tokenEstimate(messages),
			IntentType:         in.Intent.Type,
			IntentTopic:        in.Intent.Topic,
			HasCompiledContext: in.Compiled != "",
		},
	}
}

// appendHistory 追加历史片段与当前输入
// 历史末尾已经是当前输入时取最近 5 条，否则取 4 条并补上当前输入，避免重复
func appendHistory(messages []conversation.ChatMessage, recent []conversation.Message, userInput string) []conversation.ChatMessage {
	if len(recent) == 0 {
		return append(messages, conversation.ChatMessage{Role: conversation.RoleUser, Content: userInput})
	}

	last := recent[len(recent)-1]
	lastIsCurrentInput := last.Role == conversation.RoleUser && last.CurrentContent() == userInput

	window := recent
	if lastIsCurrentInput {
		if len(window) > 5 {
			window = window[len(window)-5:]
		}
	} else {
		if len(window) > 4 {
			window = window[len(window)-4:]
		}
	}

	for _, msg := range window {
		messages = append(messages, conversation.ChatMessage{
			Role:    msg.Role,
			Content: msg.CurrentContent(),
		})
	}

	if !lastIsCurrentInput {
		messages = append(messages, conversation.ChatMessage{Role: conversation.RoleUser, Content: userInput})
	}
	return messages
}

// systemPrompt 基础系统提示：用户画像 + 会话信息 + 进行中任务 + 环境变化
func (b *Builder) systemPrompt(in *composeInput) string {
	prefs, _ := json.Marshal(in.Profile.Preferences)

	var sb strings.Builder
	sb.WriteString("You are an intelligent assistant engaging in conversation with the user.\n\n")
	sb.WriteString("[User Profile]\n")
	fmt.Fprintf(&sb, "- Username: %s\n", in.Profile.Name)
	fmt.Fprintf(&sb, "- Preferences: %s\n\n", prefs)
	sb.WriteString("[Current Session]\n")
	fmt.Fprintf(&sb, "- Session Topic: %s\n", in.Session.Title)
	fmt.Fprintf(&sb, "- Session Status: %s", in.Session.Status)
	if in.Session.ContextSummary != "" {
		fmt.Fprintf(&sb, "\n- Background Summary: %s", in.Session.ContextSummary)
	}

	if len(in.Tasks) > 0 {
		sb.WriteString("\n\n[Ongoing Tasks]")
		for _, t := range in.Tasks {
			fmt.Fprintf(&sb, "\n- [%s] %s: %s", t.Status, t.Type, t.Input)
		}
	}

	if in.Env != nil && len(in.Env.Events) > 0 {
		sb.WriteString("\n\n[Environment Changes]")
		events := in.Env.Events
		if len(events) > 5 {
			events = events[:5]
		}
		for _, e := range events {
			fmt.Fprintf(&sb, "\n- [%s] %s: %s", e.Source, e.Type, e.Data)
		}
	}

	sb.WriteString("\n\nPlease answer the user's questions or execute their requests based on the above background information.")
	return sb.String()
}

func formatIntentDirective(intent *conversation.Intent) string {
	if intent == nil {
		return ""
	}

	goal := intent.Struct.Goal
	if goal == "" {
		goal = intent.Topic
	}
	if goal == "" {
		goal = clip(intent.UserInput, 50)
	}
	if goal == "" {
		goal = "Not provided"
	}

	return strings.Join([]string{
		"[Structured Intent]",
		fmt.Sprintf("- Intent Type: %s", intent.Type),
		fmt.Sprintf("- Goal: %s", goal),
		fmt.Sprintf("- Constraints: %s", formatList(intent.Struct.Constraints)),
		fmt.Sprintf("- Plan Hints: %s", formatList(intent.Struct.PlanHints)),
		fmt.Sprintf("- Key Entities: %s", formatList(intent.Struct.Entities)),
		fmt.Sprintf("- Uncertainty Reasons: %s", formatList(intent.Struct.UncertaintyReasons)),
	}, "\n")
}

func formatContextSpec(spec *conversation.ContextSpec) string {
	if spec == nil {
		return ""
	}

	includeRecent := "No"
	if spec.HistoryPolicy.IncludeRecent {
		includeRecent = "Yes"
	}
	anchor := spec.HistoryPolicy.AnchorNodeID
	if anchor == "" {
		anchor = "-"
	}

	return strings.Join([]string{
		"[Context Requirement Specification (CRS)]",
		fmt.Sprintf("- required: %s", formatList(spec.Required)),
		fmt.Sprintf("- constraints: %s", formatList(spec.Constraints)),
		fmt.Sprintf("- memoryTypes: %s", formatList(spec.MemoryTypes)),
		fmt.Sprintf("- historyPolicy: includeRecent=%s, maxTurns=%d, anchorNodeId=%s",
			includeRecent, spec.HistoryPolicy.MaxTurns, anchor),
		fmt.Sprintf("- budget: maxTokens=%d, maxMemories=%d",
			spec.Budget.MaxTokens, spec.Budget.MaxMemories),
	}, "\n")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, "; ")
}

func memoryLine(m memory.Memory) string {
	if m.Content != "" {
		return m.Content
	}
	data, _ := json.Marshal(m)
	return string(data)
}
