// Package config 应用配置：默认值 + 可选 YAML 文件 + 环境变量覆盖
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	LLM         LLMConfig         `yaml:"llm"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	ContextSpec ContextSpecConfig `yaml:"context"`
	Vector      VectorConfig      `yaml:"vector"`
	Sensors     SensorConfig      `yaml:"sensors"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort        string `yaml:"http_port"`
	ReadBufferSize  int    `yaml:"read_buffer_size"`
	WriteBufferSize int    `yaml:"write_buffer_size"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	// SQLitePath 关系库路径，留空使用 ~/.icsys/icsys.db
	SQLitePath string `yaml:"sqlite_path"`
	// KVPath 键值库路径，留空使用 ~/.icsys/kv
	KVPath string `yaml:"kv_path"`
}

// LLMConfig 生成能力配置
type LLMConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// PipelineConfig 编排管线配置
type PipelineConfig struct {
	// MaxConcurrentPerClient 单连接并发处理上限
	MaxConcurrentPerClient int `yaml:"max_concurrent_per_client"`
	// MaxTasksPerSession 单会话并发任务上限
	MaxTasksPerSession int `yaml:"max_tasks_per_session"`
	// TaskTimeout 任务超时时间
	TaskTimeout time.Duration `yaml:"task_timeout"`
	// TimeoutSweepInterval 超时巡检间隔
	TimeoutSweepInterval time.Duration `yaml:"timeout_sweep_interval"`
}

// ContextSpecConfig 上下文构建配置
// 启发式常量（auto 阈值、分支规则）保留为可配置策略值，没有针对特定负载调优
type ContextSpecConfig struct {
	MaxTokens   int `yaml:"max_tokens"`
	MaxMemories int `yaml:"max_memories"`
	// CompilationMode 上下文编译模式：off / on / auto
	CompilationMode string `yaml:"compilation_mode"`
	// CompilationThreshold auto 模式下触发编译的素材条数阈值
	CompilationThreshold int `yaml:"compilation_threshold"`
}

// VectorConfig 向量索引配置
type VectorConfig struct {
	// QdrantAddr Qdrant gRPC 地址，留空使用进程内余弦索引
	QdrantAddr string `yaml:"qdrant_addr"`
	// Collection 记忆向量集合名
	Collection string `yaml:"collection"`
}

// SensorConfig 环境传感器配置
type SensorConfig struct {
	// WatchPaths 文件监听目录
	WatchPaths []string `yaml:"watch_paths"`
}

// NewConfig 创建配置：默认值，可选 ICSYS_CONFIG 指向的 YAML 文件，再叠加环境变量
func NewConfig() *Config {
	cfg := defaultConfig()

	if path := os.Getenv("ICSYS_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			// 配置文件损坏时继续使用默认值
			fmt.Fprintf(os.Stderr, "failed to load config file %s: %v\n", path, err)
		}
	}

	cfg.applyEnv()
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        ":3001",
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		Storage: StorageConfig{},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4",
			EmbeddingModel: "text-embedding-ada-002",
		},
		Pipeline: PipelineConfig{
			MaxConcurrentPerClient: 3,
			MaxTasksPerSession:     5,
			TaskTimeout:            5 * time.Minute,
			TimeoutSweepInterval:   time.Minute,
		},
		ContextSpec: ContextSpecConfig{
			MaxTokens:            6000,
			MaxMemories:          10,
			CompilationMode:      "auto",
			CompilationThreshold: 3,
		},
		Vector: VectorConfig{
			Collection: "memory_embeddings",
		},
		Sensors: SensorConfig{},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.HTTPPort = ":" + v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("KV_PATH"); v != "" {
		c.Storage.KVPath = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := envInt("MAX_CONCURRENT_TASKS_PER_CLIENT"); v > 0 {
		c.Pipeline.MaxConcurrentPerClient = v
	}
	if v := envInt("MAX_TASKS_PER_SESSION"); v > 0 {
		c.Pipeline.MaxTasksPerSession = v
	}
	if v := envInt("TASK_TIMEOUT_MS"); v > 0 {
		c.Pipeline.TaskTimeout = time.Duration(v) * time.Millisecond
	}
	if v := envInt("CONTEXT_MAX_TOKENS"); v > 0 {
		c.ContextSpec.MaxTokens = v
	}
	if v := envInt("CONTEXT_MAX_MEMORIES"); v > 0 {
		c.ContextSpec.MaxMemories = v
	}
	if v := os.Getenv("CONTEXT_COMPILATION_MODE"); v != "" {
		c.ContextSpec.CompilationMode = v
	}
	if v := os.Getenv("QDRANT_ADDR"); v != "" {
		c.Vector.QdrantAddr = v
	}
	if v := os.Getenv("WATCH_PATHS"); v != "" {
		c.Sensors.WatchPaths = splitPaths(v)
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func splitPaths(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DataDir 返回数据根目录（~/.icsys），不存在则创建
func DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".icsys")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
