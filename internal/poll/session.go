package poll

import (
	"context"
	"time"

	"coloring-page-service/internal/pagesapi"
)

// 客户端本地终态。timed_out / canceled 不来自后端：
// 超出尝试预算或被调用方取消时本地放弃，后端任务可能仍在继续。
const (
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateTimedOut  = "timed_out"
	StateCanceled  = "canceled"
)

const (
	DefaultInterval    = 2000 * time.Millisecond
	DefaultMaxAttempts = 60

	fallbackFailureMsg = "生成失败"
	timeoutMsg         = "生成超时，请稍后刷新查看结果"
)

// PageGetter 轮询所需的最小上游能力
type PageGetter interface {
	GetPage(ctx context.Context, id string) (pagesapi.Page, error)
}

// Outcome 一次轮询会话的唯一结果。无论成功、失败、超时还是取消，
// 会话总是恰好产出一个 Outcome，绝不静默丢弃。
type Outcome struct {
	PageID       string
	State        string
	Page         pagesapi.Page // completed 时包含 imageUrl 的完整记录
	ErrorMessage string
	Attempts     int
}

// Session 针对单个页面的轮询会话：固定间隔、有限尝试次数的状态机
type Session struct {
	PageID      string
	Interval    time.Duration
	MaxAttempts int

	client PageGetter
	clock  Clock
}

func NewSession(client PageGetter, clock Clock, pageID string, interval time.Duration, maxAttempts int) *Session {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Session{
		PageID:      pageID,
		Interval:    interval,
		MaxAttempts: maxAttempts,
		client:      client,
		clock:       clock,
	}
}

// Run 执行会话直到终态。每次查询消耗一次尝试：
//   - 后端 completed/failed → 立即终结
//   - 仍在 pending/processing → 等待间隔后继续
//   - 404 → 资源不存在，按失败终结
//   - 其他查询错误 → 消耗一次尝试后继续，瞬时抖动不应杀死健康任务
//   - 预算耗尽 → timed_out
func (s *Session) Run(ctx context.Context) Outcome {
	for attempt := 1; ; attempt++ {
		page, err := s.client.GetPage(ctx, s.PageID)
		switch {
		case err == nil && page.Status == pagesapi.StatusCompleted:
			return Outcome{PageID: s.PageID, State: StateCompleted, Page: page, Attempts: attempt}
		case err == nil && page.Status == pagesapi.StatusFailed:
			msg := page.ErrorMessage
			if msg == "" {
				msg = fallbackFailureMsg
			}
			return Outcome{PageID: s.PageID, State: StateFailed, Page: page, ErrorMessage: msg, Attempts: attempt}
		case err != nil && pagesapi.IsNotFound(err):
			return Outcome{PageID: s.PageID, State: StateFailed, ErrorMessage: err.Error(), Attempts: attempt}
		case ctx.Err() != nil:
			return Outcome{PageID: s.PageID, State: StateCanceled, ErrorMessage: "轮询已取消", Attempts: attempt}
		}

		if attempt >= s.MaxAttempts {
			return Outcome{PageID: s.PageID, State: StateTimedOut, ErrorMessage: timeoutMsg, Attempts: attempt}
		}

		select {
		case <-ctx.Done():
			return Outcome{PageID: s.PageID, State: StateCanceled, ErrorMessage: "轮询已取消", Attempts: attempt}
		case <-s.clock.After(s.Interval):
		}
	}
}
