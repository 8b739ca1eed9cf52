package poll

import (
	"context"
	"log"
	"sync"
	"time"
)

// Manager 管理所有在途轮询会话。不同页面的会话相互独立并发运行，
// 完成顺序与提交顺序无关；服务关停时统一取消并等待收尾。
type Manager struct {
	client      PageGetter
	clock       Clock
	interval    time.Duration
	maxAttempts int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(client PageGetter, clock Clock, interval time.Duration, maxAttempts int) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		client:      client,
		clock:       clock,
		interval:    interval,
		maxAttempts: maxAttempts,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Watch 为单个页面启动一个轮询会话，终结时回调 fn（恰好一次）。
// 传入的 ctx 是批次级取消句柄；Manager 自身的 ctx 负责进程级关停。
func (m *Manager) Watch(ctx context.Context, pageID string, fn func(Outcome)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		sessionCtx, cancel := mergeContexts(ctx, m.ctx)
		defer cancel()

		session := NewSession(m.client, m.clock, pageID, m.interval, m.maxAttempts)
		outcome := session.Run(sessionCtx)
		log.Printf("[轮询] 页面 %s 终结: %s (尝试 %d 次)", pageID, outcome.State, outcome.Attempts)
		fn(outcome)
	}()
}

// Stop 取消所有在途会话并等待回调完成
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	log.Println("[轮询] 所有轮询会话已停止")
}

// mergeContexts 任意一个 ctx 结束即结束
func mergeContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(a)
	go func() {
		select {
		case <-b.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}
