package sensor

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/icsys/backend/internal/domain/environment"
	"github.com/icsys/backend/internal/infrastructure/log"
)

// Broadcaster 向所有在线客户端推送事件
type Broadcaster interface {
	Broadcast(eventType string, data any)
}

// FileWatcher 目录变更传感器
// 文件事件落库为环境事件并广播给客户端
type FileWatcher struct {
	events      environment.EventRepository
	broadcaster Broadcaster
	watcher     *fsnotify.Watcher
	logger      *slog.Logger

	// 防抖：同一路径短时间内的连续写入只上报一次
	debounceDelay  time.Duration
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	mu      sync.Mutex
	watched map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFileWatcher 创建文件传感器
func NewFileWatcher(events environment.EventRepository, broadcaster Broadcaster) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FileWatcher{
		events:         events,
		broadcaster:    broadcaster,
		watcher:        watcher,
		logger:         log.NewModuleLogger("sensor", "file_watcher"),
		debounceDelay:  500 * time.Millisecond,
		debounceTimers: make(map[string]*time.Timer),
		watched:        make(map[string]bool),
		stopCh:         make(chan struct{}),
	}, nil
}

// Start 启动监听循环并注册初始目录
func (fw *FileWatcher) Start(paths []string) error {
	for _, p := range paths {
		if err := fw.AddPath(p); err != nil {
			fw.logger.Warn("failed to watch path", "path", p, "error", err)
		}
	}

	fw.wg.Add(1)
	go fw.watchLoop()
	return nil
}

// Stop 停止监听
func (fw *FileWatcher) Stop() {
	close(fw.stopCh)
	_ = fw.watcher.Close()
	fw.wg.Wait()

	fw.debounceMu.Lock()
	for _, timer := range fw.debounceTimers {
		timer.Stop()
	}
	fw.debounceMu.Unlock()
}

// AddPath 新增监听目录，重复添加是空操作
func (fw *FileWatcher) AddPath(path string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.watched[path] {
		return nil
	}
	if err := fw.watcher.Add(path); err != nil {
		return err
	}
	fw.watched[path] = true
	fw.logger.Info("watching directory", "path", path)
	return nil
}

// RemovePath 移除监听目录
func (fw *FileWatcher) RemovePath(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.watched[path] {
		return
	}
	_ = fw.watcher.Remove(path)
	delete(fw.watched, path)
}

func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.stopCh:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent 带防抖的事件处理
func (fw *FileWatcher) handleFsEvent(event fsnotify.Event) {
	var eventType string
	switch {
	case event.Has(fsnotify.Create):
		eventType = "file_added"
	case event.Has(fsnotify.Write):
		eventType = "file_changed"
	case event.Has(fsnotify.Remove):
		eventType = "file_deleted"
	default:
		return
	}

	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, exists := fw.debounceTimers[event.Name]; exists {
		timer.Stop()
	}
	fw.debounceTimers[event.Name] = time.AfterFunc(fw.debounceDelay, func() {
		fw.emit(eventType, event.Name)

		fw.debounceMu.Lock()
		delete(fw.debounceTimers, event.Name)
		fw.debounceMu.Unlock()
	})
}

// emit 落库并广播一条文件事件
func (fw *FileWatcher) emit(eventType, filePath string) {
	eventData := map[string]any{
		"filePath":  filePath,
		"timestamp": time.Now().UnixMilli(),
	}
	data, _ := json.Marshal(eventData)

	e := &environment.Event{
		ID:        uuid.New().String(),
		Source:    "file_watcher",
		Type:      eventType,
		Data:      string(data),
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := fw.events.Save(e); err != nil {
		fw.logger.Error("failed to save file event", "error", err)
		return
	}

	fw.broadcaster.Broadcast("environment_event", map[string]any{
		"id":     e.ID,
		"source": e.Source,
		"type":   e.Type,
		"data":   eventData,
	})

	fw.logger.Debug("file event", "type", eventType, "path", filePath)
}
