package session

import (
	"context"
	"sync"
	"time"

	"coloring-page-service/internal/pagesapi"
	"coloring-page-service/internal/poll"

	"github.com/google/uuid"
)

// PageSlot 批次中单个页面的槽位。支持部分完成：
// 同批次里已完成的页面先行展示，其余继续等待。
type PageSlot struct {
	Page         pagesapi.Page `json:"page"`
	State        string        `json:"state"` // pending/processing/completed/failed/timed_out/canceled
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// Event 推送给订阅者的单页终结事件
type Event struct {
	BatchID      string        `json:"batchId"`
	PageID       string        `json:"pageId"`
	State        string        `json:"state"`
	Page         pagesapi.Page `json:"page"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	BatchDone    bool          `json:"batchDone"`
}

// Snapshot 批次当前状态的一致性快照
type Snapshot struct {
	BatchID          string     `json:"batchId"`
	CreatedAt        time.Time  `json:"createdAt"`
	Slots            []PageSlot `json:"slots"` // 保持后端返回的初始顺序
	CreditsRemaining *int       `json:"creditsRemaining,omitempty"`
	Done             bool       `json:"done"`
}

// Batch 一次提交产生的批次：N 个页面槽位 + 订阅者 + 取消句柄
type Batch struct {
	ID               string
	CreatedAt        time.Time
	CreditsRemaining *int

	mu          sync.Mutex
	order       []string
	slots       map[string]*PageSlot
	subscribers map[int]chan Event
	nextSubID   int
	cancel      context.CancelFunc
}

// Cancel 取消该批次所有在途轮询。导航离开等放弃场景由调用方显式触发。
func (b *Batch) Cancel() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Store 批次会话的内存存储
type Store struct {
	mu      sync.RWMutex
	batches map[string]*Batch
}

func NewStore() *Store {
	return &Store{batches: make(map[string]*Batch)}
}

// CreateBatch 为一次提交创建批次，所有页面初始为后端返回的状态
func (s *Store) CreateBatch(pages []pagesapi.Page, creditsRemaining *int, cancel context.CancelFunc) *Batch {
	b := &Batch{
		ID:               uuid.New().String(),
		CreatedAt:        time.Now(),
		CreditsRemaining: creditsRemaining,
		slots:            make(map[string]*PageSlot, len(pages)),
		subscribers:      make(map[int]chan Event),
		cancel:           cancel,
	}
	for _, p := range pages {
		state := p.Status
		if state == "" {
			state = pagesapi.StatusPending
		}
		b.order = append(b.order, p.ID)
		b.slots[p.ID] = &PageSlot{Page: p, State: state}
	}

	s.mu.Lock()
	s.batches[b.ID] = b
	s.mu.Unlock()
	return b
}

// Get 按批次 ID 查找
func (s *Store) Get(batchID string) (*Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	return b, ok
}

// Apply 将轮询结果按页面 ID 写入对应槽位，并通知订阅者。
// 终态槽位不会被覆盖（终态不可逆），未知页面 ID 被忽略，
// 因此每个页面至多产生一次终结更新，且不会串写到其他槽位。
func (b *Batch) Apply(outcome poll.Outcome) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot, ok := b.slots[outcome.PageID]
	if !ok || terminalState(slot.State) {
		return false
	}

	slot.State = outcome.State
	slot.ErrorMessage = outcome.ErrorMessage
	if outcome.Page.ID != "" {
		slot.Page = outcome.Page
	}

	event := Event{
		BatchID:      b.ID,
		PageID:       outcome.PageID,
		State:        outcome.State,
		Page:         slot.Page,
		ErrorMessage: outcome.ErrorMessage,
		BatchDone:    b.doneLocked(),
	}

	// 投递必须在锁内完成：退订的 close 也持锁，二者互斥后
	// 不会向已关闭的通道发送。通道带缓冲，投递本身不阻塞。
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// 订阅者消费过慢时丢弃事件，快照接口仍能取到完整状态
		}
	}
	return true
}

// Snapshot 返回批次当前状态
func (b *Batch) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		BatchID:          b.ID,
		CreatedAt:        b.CreatedAt,
		CreditsRemaining: b.CreditsRemaining,
		Done:             b.doneLocked(),
	}
	for _, id := range b.order {
		snap.Slots = append(snap.Slots, *b.slots[id])
	}
	return snap
}

// Subscribe 订阅批次的终结事件流，返回取消订阅函数
func (b *Batch) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	ch := make(chan Event, 16)
	b.subscribers[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if _, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
		b.mu.Unlock()
	}
}

func (b *Batch) doneLocked() bool {
	for _, slot := range b.slots {
		if !terminalState(slot.State) {
			return false
		}
	}
	return true
}

func terminalState(state string) bool {
	switch state {
	case poll.StateCompleted, poll.StateFailed, poll.StateTimedOut, poll.StateCanceled:
		return true
	}
	return false
}
