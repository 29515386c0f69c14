package vector

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/icsys/backend/internal/domain/memory"
	"github.com/icsys/backend/internal/infrastructure/log"
)

// QdrantIndex 基于 Qdrant 的向量索引
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger

	// 集合在首次写入时按向量维度懒创建
	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantIndex 连接 Qdrant，addr 形如 host:port（gRPC）
func NewQdrantIndex(addr, collection string) (*QdrantIndex, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantIndex{
		client:     client,
		collection: collection,
		logger:     log.NewModuleLogger("vector", "qdrant_index"),
	}, nil
}

// ensureCollection 确保集合存在
func (idx *QdrantIndex) ensureCollection(ctx context.Context, dim int) error {
	idx.ensureOnce.Do(func() {
		existing, err := idx.client.ListCollections(ctx)
		if err != nil {
			idx.ensureErr = fmt.Errorf("failed to list collections: %w", err)
			return
		}
		for _, name := range existing {
			if name == idx.collection {
				return
			}
		}

		idx.ensureErr = idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: idx.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	return idx.ensureErr
}

// Add 写入一条向量及其关联记忆
func (idx *QdrantIndex) Add(id string, vec []float32, m *memory.Memory) error {
	ctx := context.Background()

	if err := idx.ensureCollection(ctx, len(vec)); err != nil {
		return err
	}

	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(id),
				Vectors: qdrant.NewVectors(vec...),
				Payload: qdrant.NewValueMap(map[string]interface{}{
					"type":      m.Type,
					"content":   m.Content,
					"timestamp": m.Timestamp,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert memory vector: %w", err)
	}
	return nil
}

// SearchSimilar 向量检索，返回按相似度排序的前 limit 条
func (idx *QdrantIndex) SearchSimilar(query []float32, limit int) ([]memory.ScoredMemory, error) {
	ctx := context.Background()

	if limit <= 0 {
		limit = 10
	}
	qLimit := uint64(limit)

	hits, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &qLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}

	results := make([]memory.ScoredMemory, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		if payload == nil {
			continue
		}
		results = append(results, memory.ScoredMemory{
			Memory: memory.Memory{
				Type:      payload["type"].GetStringValue(),
				Content:   payload["content"].GetStringValue(),
				Timestamp: payload["timestamp"].GetIntegerValue(),
			},
			Similarity: float64(hit.GetScore()),
		})
	}
	return results, nil
}

// 编译时检查接口实现
var _ memory.VectorIndex = (*QdrantIndex)(nil)
