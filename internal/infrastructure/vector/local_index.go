// Package vector 记忆向量索引实现
// 未配置 Qdrant 时使用进程内余弦扫描，配置后走外部向量库
package vector

import (
	"log/slog"
	"math"
	"sort"

	"github.com/icsys/backend/internal/domain/memory"
	"github.com/icsys/backend/internal/infrastructure/kvstore"
	"github.com/icsys/backend/internal/infrastructure/log"
)

// LocalIndex 基于键值库的进程内余弦索引
type LocalIndex struct {
	store  *kvstore.Store
	logger *slog.Logger
}

// NewLocalIndex 创建进程内索引
func NewLocalIndex(store *kvstore.Store) *LocalIndex {
	return &LocalIndex{
		store:  store,
		logger: log.NewModuleLogger("vector", "local_index"),
	}
}

// Add 写入一条向量及其关联记忆
func (idx *LocalIndex) Add(id string, vec []float32, m *memory.Memory) error {
	return idx.store.SaveEmbedding(id, vec, m)
}

// SearchSimilar 全量扫描按余弦相似度排序，返回前 limit 条
func (idx *LocalIndex) SearchSimilar(query []float32, limit int) ([]memory.ScoredMemory, error) {
	var results []memory.ScoredMemory
	err := idx.store.AllEmbeddings(func(_ string, rec *kvstore.EmbeddingRecord) error {
		results = append(results, memory.ScoredMemory{
			Memory:     rec.Metadata,
			Similarity: CosineSimilarity(query, rec.Embedding),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CosineSimilarity 余弦相似度，长度不一致或零向量返回 0
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// 编译时检查接口实现
var _ memory.VectorIndex = (*LocalIndex)(nil)
