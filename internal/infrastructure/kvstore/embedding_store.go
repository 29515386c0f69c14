package kvstore

import (
	"time"

	"github.com/icsys/backend/internal/domain/memory"
)

// EmbeddingRecord 向量记录
type EmbeddingRecord struct {
	Embedding []float32     `json:"embedding"`
	Metadata  memory.Memory `json:"metadata"`
	CreatedAt int64         `json:"createdAt"`
}

// SaveEmbedding 写入一条向量及其关联记忆
func (s *Store) SaveEmbedding(id string, vector []float32, m *memory.Memory) error {
	return s.putJSON("emb:"+id, &EmbeddingRecord{
		Embedding: vector,
		Metadata:  *m,
		CreatedAt: time.Now().UnixMilli(),
	})
}

// AllEmbeddings 遍历全部向量记录
func (s *Store) AllEmbeddings(fn func(id string, rec *EmbeddingRecord) error) error {
	return s.iterPrefix("emb:", func(key string, value []byte) error {
		var rec EmbeddingRecord
		if err := unmarshal(value, &rec); err != nil {
			return err
		}
		return fn(key[len("emb:"):], &rec)
	})
}
