package contextbuild

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/llm"
	"github.com/icsys/backend/internal/domain/memory"
)

const compilationHeader = "[Context Compilation]"

const compilerSystemPrompt = `You are a context compiler. Based on input materials, output a high-quality context summary for the main model.
Requirements:
- Use only input materials, do not fabricate information
- Merge similar information, avoid duplication
- Identify constraints, goals, known facts, current progress, pending questions
- Be concise, prioritize bullet points
- Output format must use the following template:
[Context Compilation]
Goal:
Constraints:
Key Facts:
- ...
Current Progress:
- ...
Pending Questions:
- ...
Required Output:
[/Context Compilation]`

type compileInput struct {
	Intent   *conversation.Intent
	Spec     *conversation.ContextSpec
	Recent   []conversation.Message
	Memories []memory.Memory
	Tasks    []TaskSummary
	Env      *EnvironmentState
}

// shouldCompile 编译决策：off 永不，on 总是，auto 按素材量
func (b *Builder) shouldCompile(in *compileInput) bool {
	switch strings.ToLower(b.cfg.CompilationMode) {
	case "off":
		return false
	case "on":
		return true
	}

	score := len(in.Recent) + len(in.Memories) + len(in.Tasks)
	return score >= b.cfg.CompilationThreshold
}

// compileContext 将原始素材压缩为结构化摘要
// 编译失败静默回退，返回空串表示跳过编译
func (b *Builder) compileContext(ctx context.Context, in *compileInput) string {
	if !b.shouldCompile(in) {
		return ""
	}

	payload := b.compilerPayload(in)
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ""
	}

	response, err := b.llm.Chat(ctx, []conversation.ChatMessage{
		{Role: conversation.RoleSystem, Content: compilerSystemPrompt},
		{Role: conversation.RoleUser, Content: string(data)},
	}, llm.ChatOptions{Temperature: 0.2, MaxTokens: 700})
	if err != nil {
		b.logger.Warn("context compilation failed, falling back to raw context", "error", err)
		return ""
	}

	compiled := strings.TrimSpace(response)
	if compiled == "" {
		return ""
	}
	if !strings.HasPrefix(compiled, compilationHeader) {
		compiled = compilationHeader + "\n" + compiled
	}
	return compiled
}

// compilerPayload 裁剪素材为编译器输入：最近 8 条消息、8 条记忆，各字段限长
func (b *Builder) compilerPayload(in *compileInput) map[string]any {
	goal := in.Intent.Struct.Goal
	if goal == "" {
		goal = in.Intent.Topic
	}
	if goal == "" {
		goal = clip(in.Intent.UserInput, 50)
	}

	recent := in.Recent
	if len(recent) > 8 {
		recent = recent[len(recent)-8:]
	}
	recentView := make([]map[string]any, 0, len(recent))
	for _, m := range recent {
		recentView = append(recentView, map[string]any{
			"role":    m.Role,
			"content": ellipsis(m.CurrentContent(), 600),
		})
	}

	mems := in.Memories
	if len(mems) > 8 {
		mems = mems[len(mems)-8:]
	}
	memView := make([]string, 0, len(mems))
	for _, m := range mems {
		memView = append(memView, ellipsis(memoryLine(m), 300))
	}

	taskView := make([]map[string]any, 0, len(in.Tasks))
	for _, t := range in.Tasks {
		taskView = append(taskView, map[string]any{
			"type":   t.Type,
			"status": t.Status,
			"input":  ellipsis(t.Input, 120),
		})
	}

	var envView []EnvironmentEvent
	if in.Env != nil {
		envView = in.Env.Events
		if len(envView) > 5 {
			envView = envView[:5]
		}
	}

	payload := map[string]any{
		"intent": map[string]any{
			"type":        in.Intent.Type,
			"goal":        goal,
			"constraints": in.Intent.Struct.Constraints,
			"planHints":   in.Intent.Struct.PlanHints,
			"entities":    in.Intent.Struct.Entities,
		},
		"recentMessages": recentView,
		"memories":       memView,
		"relatedTasks":   taskView,
		"environment":    envView,
	}

	if in.Spec != nil {
		payload["contextSpec"] = map[string]any{
			"required":      in.Spec.Required,
			"constraints":   in.Spec.Constraints,
			"memoryTypes":   in.Spec.MemoryTypes,
			"historyPolicy": in.Spec.HistoryPolicy,
		}
	}
	return payload
}

// ellipsis 超长截断并加省略号
func ellipsis(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
