// Package llm 定义生成能力接口
// 具体的模型提供方调用语义对上层不可见，上层只依赖这里的契约
package llm

import (
	"context"

	"github.com/icsys/backend/internal/domain/conversation"
)

// ChatOptions 单次调用选项
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// ChunkHandler 流式回调：chunk 为本次增量，accumulated 为累计全文
type ChunkHandler func(chunk, accumulated string)

// Service 生成能力接口
// 所有调用都可能失败，调用方必须按各自策略降级
type Service interface {
	// Chat 同步对话，返回完整回复文本
	Chat(ctx context.Context, messages []conversation.ChatMessage, opts ChatOptions) (string, error)

	// StreamChat 流式对话，按块回调，返回最终全文
	StreamChat(ctx context.Context, messages []conversation.ChatMessage, onChunk ChunkHandler) (string, error)

	// Embed 文本向量化
	Embed(ctx context.Context, text string) ([]float32, error)

	// AnalyzeIntent 意图分类，返回原始 JSON 解码结果
	// 输出不保证类型安全，调用方必须归一化
	AnalyzeIntent(ctx context.Context, userInput string, analysisContext map[string]any) (map[string]any, error)
}
