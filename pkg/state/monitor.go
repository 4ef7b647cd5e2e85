package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/farmbot/internal/logger"
)

// DefaultCheckInterval 默认状态检测间隔
const DefaultCheckInterval = 500 * time.Millisecond

// FrameSource 非阻塞的帧来源
// *capture.FrameQueue 实现此接口
type FrameSource interface {
	TryGet() (gocv.Mat, bool)
}

// Callback 状态变化回调，参数为旧状态 ID 和新状态 ID
type Callback func(previous, current string)

type callbackEntry struct {
	id int
	fn Callback
}

// Monitor 状态监视器
// 后台循环从帧队列取帧分类，维护当前/上一个状态并触发回调。
// current/previous/lastChange 由同一把锁保护。
type Monitor struct {
	catalog    *Catalog
	classifier Classifier
	interval   time.Duration
	log        *logger.Logger

	mu         sync.Mutex
	current    string
	previous   string
	lastChange time.Time
	callbacks  []callbackEntry
	nextCBID   int

	stop chan struct{}
	done chan struct{}
}

// MonitorOption 监视器选项
type MonitorOption func(*Monitor)

// WithCheckInterval 设置检测间隔
func WithCheckInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// NewMonitor 创建状态监视器
func NewMonitor(catalog *Catalog, classifier Classifier, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		catalog:    catalog,
		classifier: classifier,
		interval:   DefaultCheckInterval,
		current:    Unknown,
		previous:   Unknown,
		lastChange: time.Now(),
		log:        logger.WithPrefix("STATE"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 启动监视循环
func (m *Monitor) Start(frames FrameSource) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(frames)
	m.log.Info("状态监视已启动，检测间隔 %v，共 %d 个状态", m.interval, len(m.catalog.Configs))
}

// Stop 停止监视循环，最多等待 timeout
func (m *Monitor) Stop(timeout time.Duration) error {
	if m.stop == nil {
		return nil
	}
	close(m.stop)

	select {
	case <-m.done:
		m.log.Info("状态监视已停止")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("等待状态监视退出超时 (%v)", timeout)
	}
}

func (m *Monitor) loop(frames FrameSource) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		// 非阻塞取一帧，没有就等下一个周期
		frame, ok := frames.TryGet()
		if !ok {
			continue
		}
		m.Detect(frame)
		frame.Close()
	}
}

// Detect 对单帧分类并更新状态
func (m *Monitor) Detect(frame gocv.Mat) {
	matches := m.classifier.Classify(frame)
	best := m.determineBestState(matches)
	m.applyState(best, matches)
}

// applyState 在锁内更新状态，变化时触发回调
func (m *Monitor) applyState(best string, matches map[string]float64) {
	m.mu.Lock()
	if best == m.current {
		m.mu.Unlock()
		return
	}

	m.previous = m.current
	m.current = best
	m.lastChange = time.Now()
	previous := m.previous

	// 拷贝回调列表，通知在锁外同步执行
	callbacks := make([]callbackEntry, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	if best != Unknown {
		m.log.Info("状态切换: %s -> %s (置信度 %.4f)",
			m.catalog.DisplayName(previous), m.catalog.DisplayName(best), matches[best])
	} else {
		m.log.Debug("状态切换: %s -> unknown", m.catalog.DisplayName(previous))
	}

	for _, cb := range callbacks {
		m.invokeCallback(cb, previous, best)
	}
}

// invokeCallback 执行单个回调，panic 只记日志不中断监视
func (m *Monitor) invokeCallback(cb callbackEntry, previous, current string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("状态回调 %d 执行失败: %v", cb.id, r)
		}
	}()
	cb.fn(previous, current)
}

// determineBestState 在命中的状态中挑选最终状态
//
// 规则：按置信度降序（同分按状态 ID 升序）遍历，取第一个不让位的
// 状态；有让位列表的状态在列表中任一状态同时命中时落选。全部落选
// 时回退到置信度最高者，无命中返回 unknown。
func (m *Monitor) determineBestState(matches map[string]float64) string {
	if len(matches) == 0 {
		return Unknown
	}

	detected := make([]string, 0, len(matches))
	for id := range matches {
		detected = append(detected, id)
	}
	sort.Slice(detected, func(i, j int) bool {
		if matches[detected[i]] != matches[detected[j]] {
			return matches[detected[i]] > matches[detected[j]]
		}
		return detected[i] < detected[j]
	})

	for _, id := range detected {
		cfg, ok := m.catalog.Configs[id]
		if !ok || len(cfg.Priority) == 0 {
			return id
		}

		yields := false
		for _, other := range cfg.Priority {
			if _, found := matches[other]; found {
				yields = true
				break
			}
		}
		if !yields {
			return id
		}
	}
	return detected[0]
}

// RegisterCallback 注册状态变化回调，返回用于注销的句柄
func (m *Monitor) RegisterCallback(fn Callback) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextCBID++
	m.callbacks = append(m.callbacks, callbackEntry{id: m.nextCBID, fn: fn})
	return m.nextCBID
}

// UnregisterCallback 注销回调
func (m *Monitor) UnregisterCallback(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, cb := range m.callbacks {
		if cb.id == id {
			m.callbacks = append(m.callbacks[:i], m.callbacks[i+1:]...)
			return
		}
	}
}

// Current 返回当前状态 ID
func (m *Monitor) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Previous 返回上一个状态 ID
func (m *Monitor) Previous() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previous
}

// Duration 返回当前状态已持续的时间
func (m *Monitor) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastChange)
}

// CurrentDisplayName 返回当前状态的展示名称
func (m *Monitor) CurrentDisplayName() string {
	return m.catalog.DisplayName(m.Current())
}
