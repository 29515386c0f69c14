package sensor

import (
	"encoding/json"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/icsys/backend/internal/domain/environment"
	"github.com/icsys/backend/internal/infrastructure/log"
)

// PollerConfig API 轮询配置
// Interval 单位毫秒，与客户端协议一致
type PollerConfig struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	Interval    int64             `json:"interval"`
	ExtractPath string            `json:"extractPath,omitempty"`
}

// pollInterval 轮询间隔
func (c PollerConfig) pollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Millisecond
}

// APIPoller 外部接口轮询传感器
// 周期拉取 JSON 接口，值发生变化时产出 value_changed 环境事件
type APIPoller struct {
	subs        environment.SubscriptionRepository
	events      environment.EventRepository
	broadcaster Broadcaster
	http        *resty.Client
	logger      *slog.Logger

	mu         sync.Mutex
	cancels    map[string]chan struct{}
	lastValues map[string]any
	wg         sync.WaitGroup
}

// NewAPIPoller 创建 API 轮询传感器
func NewAPIPoller(subs environment.SubscriptionRepository, events environment.EventRepository, broadcaster Broadcaster) *APIPoller {
	return &APIPoller{
		subs:        subs,
		events:      events,
		broadcaster: broadcaster,
		http:        resty.New().SetTimeout(30 * time.Second),
		logger:      log.NewModuleLogger("sensor", "api_poller"),
		cancels:     make(map[string]chan struct{}),
		lastValues:  make(map[string]any),
	}
}

// Start 恢复所有活跃的 API 轮询
func (p *APIPoller) Start() error {
	active, err := p.subs.FindActive("api")
	if err != nil {
		return err
	}

	for _, sub := range active {
		var cfg PollerConfig
		if err := json.Unmarshal([]byte(sub.Config), &cfg); err != nil {
			p.logger.Warn("skipping poller with invalid config", "id", sub.ID, "error", err)
			continue
		}
		p.startPolling(sub.ID, cfg)
	}
	return nil
}

// Stop 停止所有轮询
func (p *APIPoller) Stop() {
	p.mu.Lock()
	for id, cancel := range p.cancels {
		close(cancel)
		delete(p.cancels, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Add 新增轮询并立即开始，返回轮询 id
func (p *APIPoller) Add(cfg PollerConfig) (string, error) {
	if cfg.Method == "" {
		cfg.Method = "GET"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute.Milliseconds()
	}

	id := uuid.New().String()
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := p.subs.Save(&environment.Subscription{
		ID:        id,
		Type:      "api",
		Config:    string(raw),
		Status:    "active",
		CreatedAt: time.Now().UnixMilli(),
	}); err != nil {
		return "", err
	}

	p.startPolling(id, cfg)

	p.broadcaster.Broadcast("api_poller_added", map[string]any{
		"id":          id,
		"name":        cfg.Name,
		"url":         cfg.URL,
		"method":      cfg.Method,
		"interval":    cfg.Interval,
		"extractPath": cfg.ExtractPath,
	})
	return id, nil
}

// Remove 停止轮询并将配置行置为 inactive
func (p *APIPoller) Remove(id string) error {
	p.mu.Lock()
	if cancel, ok := p.cancels[id]; ok {
		close(cancel)
		delete(p.cancels, id)
	}
	delete(p.lastValues, id)
	p.mu.Unlock()

	if err := p.subs.UpdateStatus(id, "inactive"); err != nil {
		return err
	}

	p.broadcaster.Broadcast("api_poller_removed", map[string]any{"id": id})
	return nil
}

func (p *APIPoller) startPolling(id string, cfg PollerConfig) {
	cancel := make(chan struct{})

	p.mu.Lock()
	if old, ok := p.cancels[id]; ok {
		close(old)
	}
	p.cancels[id] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.poll(id, cfg)

		ticker := time.NewTicker(cfg.pollInterval())
		defer ticker.Stop()

		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				p.poll(id, cfg)
			}
		}
	}()
}

// poll 单次拉取与变更检测
func (p *APIPoller) poll(id string, cfg PollerConfig) {
	req := p.http.R()
	for k, v := range cfg.Headers {
		req.SetHeader(k, v)
	}

	resp, err := req.Execute(cfg.Method, cfg.URL)
	if err != nil {
		p.logger.Error("api polling failed", "id", id, "error", err)
		return
	}

	var data any
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		p.logger.Error("api response is not json", "id", id, "error", err)
		return
	}

	value := data
	if cfg.ExtractPath != "" {
		value = extractValue(data, cfg.ExtractPath)
	}

	p.mu.Lock()
	last, seen := p.lastValues[id]
	changed := !seen || !reflect.DeepEqual(last, value)
	if changed {
		p.lastValues[id] = value
	}
	p.mu.Unlock()

	if changed {
		p.processChange(id, cfg, value, last)
	}

	if err := p.subs.TouchLastCheck(id); err != nil {
		p.logger.Warn("failed to touch poller", "id", id, "error", err)
	}
}

// extractValue 沿点分路径取值，路径无效返回 nil
func extractValue(data any, path string) any {
	value := data
	for _, key := range strings.Split(path, ".") {
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		value = m[key]
	}
	return value
}

// processChange 落库并广播一次取值变更
func (p *APIPoller) processChange(id string, cfg PollerConfig, newValue, oldValue any) {
	payload, err := json.Marshal(map[string]any{
		"pollerId":  id,
		"name":      cfg.Name,
		"url":       cfg.URL,
		"newValue":  newValue,
		"oldValue":  oldValue,
		"timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	e := &environment.Event{
		ID:        uuid.New().String(),
		Source:    "api_poller",
		Type:      "value_changed",
		Data:      string(payload),
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := p.events.Save(e); err != nil {
		p.logger.Error("failed to save poller event", "id", id, "error", err)
		return
	}

	var delta any
	if n, ok := newValue.(float64); ok {
		if o, ok := oldValue.(float64); ok {
			delta = n - o
		}
	}

	p.broadcaster.Broadcast("environment_event", map[string]any{
		"id":     e.ID,
		"source": "api_poller",
		"type":   "value_changed",
		"data": map[string]any{
			"name":     cfg.Name,
			"newValue": newValue,
			"oldValue": oldValue,
			"change":   delta,
		},
	})

	p.logger.Info("api value changed", "name", cfg.Name)
}
