// Package kvstore 基于 LevelDB 的键值存储
// 消息日志、记忆日志、意图单例记录、画布快照和向量都落在这里
package kvstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/icsys/backend/internal/infrastructure/log"
)

// Store LevelDB 键值存储
type Store struct {
	db     *leveldb.DB
	logger *slog.Logger
}

// Open 打开键值库，目录不存在则创建
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create kv directory: %w", err)
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.NewModuleLogger("kvstore", "store"),
	}, nil
}

// Close 关闭键值库
func (s *Store) Close() error {
	return s.db.Close()
}

// putJSON 序列化写入
func (s *Store) putJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}
	if err := s.db.Put([]byte(key), data, nil); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// getJSON 读取并反序列化，键不存在返回 (false, nil)
func (s *Store) getJSON(key string, out any) (bool, error) {
	data, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// iterPrefix 按键序遍历前缀下的所有值
func (s *Store) iterPrefix(prefix string, fn func(key string, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	for iter.Next() {
		if err := fn(string(iter.Key()), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
