package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager 优雅停机管理器
//
// 收到终止信号后按注册顺序号依次执行清理函数（HTTP服务器、
// 缓存数据库、Kafka生产者、链客户端），总耗时受超时约束。
type Manager struct {
	logger         *logrus.Logger
	timeout        time.Duration
	hooks          []hook
	mu             sync.Mutex
	signalChan     chan os.Signal
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	isShuttingDown bool
}

// hook 一个清理步骤
type hook struct {
	name  string
	fn    func(ctx context.Context) error
	order int // 数字越小越早执行
}

// NewManager 创建优雅停机管理器
func NewManager(timeout time.Duration, logger *logrus.Logger) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:     logger,
		timeout:    timeout,
		signalChan: make(chan os.Signal, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	signal.Notify(m.signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	return m
}

// Register 注册清理函数
func (m *Manager) Register(name string, fn func(ctx context.Context) error, order int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = append(m.hooks, hook{name: name, fn: fn, order: order})
	m.logger.Debugf("注册停机处理函数: %s (order: %d)", name, order)
}

// Start 启动信号监听
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.signalHandler()
}

// Wait 等待停机完成
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Context 获取主上下文，停机时被取消
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Shutdown 手动触发停机
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.isShuttingDown {
		m.mu.Unlock()
		return
	}
	m.isShuttingDown = true
	m.mu.Unlock()

	m.performShutdown()
}

// signalHandler 信号处理器
func (m *Manager) signalHandler() {
	defer m.wg.Done()

	sig := <-m.signalChan
	m.logger.Infof("收到停机信号: %v", sig)

	m.mu.Lock()
	if m.isShuttingDown {
		m.mu.Unlock()
		return
	}
	m.isShuttingDown = true
	m.mu.Unlock()

	m.performShutdown()
}

// performShutdown 按顺序执行所有清理函数
func (m *Manager) performShutdown() {
	m.logger.Info("开始优雅停机流程...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), m.timeout)
	defer shutdownCancel()

	m.mu.Lock()
	hooks := make([]hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].order < hooks[j].order
	})

	for _, h := range hooks {
		start := time.Now()
		if err := h.fn(shutdownCtx); err != nil {
			m.logger.Errorf("停机处理 '%s' 失败 (耗时: %v): %v", h.name, time.Since(start), err)
		} else {
			m.logger.Infof("停机处理 '%s' 完成 (耗时: %v)", h.name, time.Since(start))
		}

		select {
		case <-shutdownCtx.Done():
			m.logger.Warn("停机超时，强制退出")
			m.cancel()
			return
		default:
		}
	}

	m.cancel()
	m.logger.Info("优雅停机流程完成")
}

// IsShuttingDown 检查是否正在停机
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isShuttingDown
}
