package sensor

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/icsys/backend/internal/domain/environment"
	"github.com/icsys/backend/internal/infrastructure/log"
)

// SubscriptionConfig 订阅配置，JSON 序列化后存入订阅行
// Interval 单位毫秒，与客户端协议一致
type SubscriptionConfig struct {
	Type     string `json:"type"` // rss / webpage
	URL      string `json:"url"`
	Interval int64  `json:"interval"`
	Name     string `json:"name"`
}

// pollInterval 轮询间隔
func (c SubscriptionConfig) pollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Millisecond
}

// FeedUpdate 一次订阅拉取的结果
type FeedUpdate struct {
	Title string     `json:"title,omitempty"`
	Items []FeedItem `json:"items,omitempty"`

	URL           string `json:"url,omitempty"`
	ContentLength int    `json:"contentLength,omitempty"`
	Snippet       string `json:"snippet,omitempty"`
	FetchedAt     int64  `json:"fetchedAt,omitempty"`
}

// FeedItem RSS 条目摘要
type FeedItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	PubDate string `json:"pubDate,omitempty"`
	Snippet string `json:"contentSnippet,omitempty"`
}

// SubscriptionManager RSS / 网页订阅传感器
// 每个活跃订阅一个轮询协程，更新落库为环境事件并广播
type SubscriptionManager struct {
	subs        environment.SubscriptionRepository
	events      environment.EventRepository
	broadcaster Broadcaster
	parser      *gofeed.Parser
	http        *resty.Client
	logger      *slog.Logger

	mu      sync.Mutex
	cancels map[string]chan struct{}
	wg      sync.WaitGroup
}

// NewSubscriptionManager 创建订阅传感器
func NewSubscriptionManager(subs environment.SubscriptionRepository, events environment.EventRepository, broadcaster Broadcaster) *SubscriptionManager {
	return &SubscriptionManager{
		subs:        subs,
		events:      events,
		broadcaster: broadcaster,
		parser:      gofeed.NewParser(),
		http:        resty.New().SetTimeout(30 * time.Second),
		logger:      log.NewModuleLogger("sensor", "subscription"),
		cancels:     make(map[string]chan struct{}),
	}
}

// Start 恢复所有活跃订阅的轮询
func (m *SubscriptionManager) Start() error {
	active, err := m.subs.FindActive("")
	if err != nil {
		return err
	}

	for _, sub := range active {
		if sub.Type == "api" {
			continue // API 轮询由 APIPoller 负责
		}
		var cfg SubscriptionConfig
		if err := json.Unmarshal([]byte(sub.Config), &cfg); err != nil {
			m.logger.Warn("skipping subscription with invalid config", "id", sub.ID, "error", err)
			continue
		}
		m.startPolling(sub.ID, cfg)
	}
	return nil
}

// Stop 停止所有轮询
func (m *SubscriptionManager) Stop() {
	m.mu.Lock()
	for id, cancel := range m.cancels {
		close(cancel)
		delete(m.cancels, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Add 新增订阅并立即开始轮询，返回订阅 id
func (m *SubscriptionManager) Add(cfg SubscriptionConfig) (string, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = (5 * time.Minute).Milliseconds()
	}

	id := uuid.New().String()
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := m.subs.Save(&environment.Subscription{
		ID:        id,
		Type:      cfg.Type,
		Config:    string(raw),
		Status:    "active",
		CreatedAt: time.Now().UnixMilli(),
	}); err != nil {
		return "", err
	}

	m.startPolling(id, cfg)

	m.broadcaster.Broadcast("subscription_added", map[string]any{
		"id":       id,
		"type":     cfg.Type,
		"url":      cfg.URL,
		"interval": cfg.Interval,
		"name":     cfg.Name,
	})
	return id, nil
}

// Remove 停止轮询并将订阅置为 inactive
func (m *SubscriptionManager) Remove(id string) error {
	m.mu.Lock()
	if cancel, ok := m.cancels[id]; ok {
		close(cancel)
		delete(m.cancels, id)
	}
	m.mu.Unlock()

	if err := m.subs.UpdateStatus(id, "inactive"); err != nil {
		return err
	}

	m.broadcaster.Broadcast("subscription_removed", map[string]any{"id": id})
	return nil
}

// startPolling 启动单个订阅的轮询协程，先立即拉取一次
func (m *SubscriptionManager) startPolling(id string, cfg SubscriptionConfig) {
	cancel := make(chan struct{})

	m.mu.Lock()
	if old, ok := m.cancels[id]; ok {
		close(old)
	}
	m.cancels[id] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.poll(id, cfg)

		ticker := time.NewTicker(cfg.pollInterval())
		defer ticker.Stop()

		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				m.poll(id, cfg)
			}
		}
	}()
}

// poll 单次拉取，失败只记日志
func (m *SubscriptionManager) poll(id string, cfg SubscriptionConfig) {
	var (
		update *FeedUpdate
		err    error
	)

	switch cfg.Type {
	case "rss":
		update, err = m.fetchRSS(cfg.URL)
	case "webpage":
		update, err = m.fetchWebpage(cfg.URL)
	default:
		return
	}

	if err != nil {
		m.logger.Error("subscription update failed", "id", id, "error", err)
		return
	}

	if update != nil {
		m.processUpdate(id, cfg, update)
	}

	if err := m.subs.TouchLastCheck(id); err != nil {
		m.logger.Warn("failed to touch subscription", "id", id, "error", err)
	}
}

// fetchRSS 拉取并摘要前 10 条
func (m *SubscriptionManager) fetchRSS(url string) (*FeedUpdate, error) {
	feed, err := m.parser.ParseURL(url)
	if err != nil {
		return nil, err
	}

	items := feed.Items
	if len(items) > 10 {
		items = items[:10]
	}

	update := &FeedUpdate{Title: feed.Title}
	for _, item := range items {
		published := ""
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.Format(time.RFC1123Z)
		} else {
			published = item.Published
		}
		update.Items = append(update.Items, FeedItem{
			Title:   item.Title,
			Link:    item.Link,
			PubDate: published,
			Snippet: snippet(item.Description, 200),
		})
	}
	return update, nil
}

// fetchWebpage 抓取页面摘要
func (m *SubscriptionManager) fetchWebpage(url string) (*FeedUpdate, error) {
	resp, err := m.http.R().Get(url)
	if err != nil {
		return nil, err
	}

	body := resp.String()
	return &FeedUpdate{
		URL:           url,
		ContentLength: len(body),
		Snippet:       snippet(body, 500),
		FetchedAt:     time.Now().UnixMilli(),
	}, nil
}

// processUpdate 落库并广播更新
func (m *SubscriptionManager) processUpdate(id string, cfg SubscriptionConfig, update *FeedUpdate) {
	payload, err := json.Marshal(map[string]any{
		"subscriptionId": id,
		"config":         cfg,
		"data":           update,
	})
	if err != nil {
		return
	}

	e := &environment.Event{
		ID:        uuid.New().String(),
		Source:    "subscription",
		Type:      cfg.Type,
		Data:      string(payload),
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := m.events.Save(e); err != nil {
		m.logger.Error("failed to save subscription event", "id", id, "error", err)
		return
	}

	m.broadcaster.Broadcast("environment_event", map[string]any{
		"id":     e.ID,
		"source": "subscription",
		"type":   cfg.Type,
		"data": map[string]any{
			"name":   cfg.Name,
			"url":    cfg.URL,
			"update": update,
		},
	})
}

// snippet 取前 n 个符文
func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
