package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	domainLLM "github.com/icsys/backend/internal/domain/llm"
	"github.com/icsys/backend/internal/domain/conversation"
)

// intentSystemPrompt 意图分析提示词
const intentSystemPrompt = `You are an intent analysis expert. Analyze user input and return only JSON, no extra text.

Determination rules:
- intent is "task": User requests specific operations, content creation, problem analysis, planning, etc.
- requiresAction is true: AI needs to perform specific work, not just answer questions
- Contains action verbs (create, analyze, design, write, develop, generate, optimize, etc.) typically indicates a task

Return format:
{
  "intent": "Primary intent type: question/task/feedback/clarification/interrupt",
  "topic": "Topic keywords",
  "urgency": "Urgency level: low/medium/high",
  "requiresAction": true/false,
  "relatedTopics": ["Array of related topics"],
  "sentiment": "Sentiment: positive/neutral/negative",
  "confidence": 0.0-1.0,
  "intentStruct": {
    "goal": "User's core objective",
    "constraints": ["Array of constraint conditions"],
    "entities": ["Array of key entities"],
    "planHints": ["Possible steps or planning hints"],
    "evidence": [{"source": "user_input", "span": "Intent evidence fragment"}],
    "uncertaintyReasons": ["Array of uncertainty reasons"]
  }
}

Examples:
- "What is AI?" -> intent: "question", requiresAction: false
- "Help me write a plan" -> intent: "task", requiresAction: true
- "Analyze this data" -> intent: "task", requiresAction: true`

// AnalyzeIntent 调用分类能力并解码 JSON 输出
// 输出不保证类型安全，归一化由意图引擎负责
func (c *Client) AnalyzeIntent(ctx context.Context, userInput string, analysisContext map[string]any) (map[string]any, error) {
	ctxJSON, err := json.Marshal(analysisContext)
	if err != nil {
		ctxJSON = []byte("{}")
	}

	response, err := c.Chat(ctx, []conversation.ChatMessage{
		{Role: conversation.RoleSystem, Content: intentSystemPrompt},
		{Role: conversation.RoleUser, Content: fmt.Sprintf("User input: %s\n\nCurrent context: %s", userInput, ctxJSON)},
	}, domainLLM.ChatOptions{Temperature: 0.3})
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(extractJSON(response)), &raw); err != nil {
		return nil, fmt.Errorf("classifier returned malformed JSON: %w", err)
	}
	return raw, nil
}

// extractJSON 剥离模型偶尔包裹的 markdown 代码块
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
