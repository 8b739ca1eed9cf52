package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coloring-page-service/internal/pagesapi"
	"coloring-page-service/internal/poll"
)

func newTestBatch(t *testing.T, ids ...string) *Batch {
	t.Helper()
	pages := make([]pagesapi.Page, 0, len(ids))
	for _, id := range ids {
		pages = append(pages, pagesapi.Page{ID: id, Status: pagesapi.StatusPending})
	}
	credits := 5
	return NewStore().CreateBatch(pages, &credits, nil)
}

func TestCreateBatchPreservesOrder(t *testing.T) {
	b := newTestBatch(t, "c", "a", "b")
	snap := b.Snapshot()
	require.Len(t, snap.Slots, 3)
	assert.Equal(t, "c", snap.Slots[0].Page.ID)
	assert.Equal(t, "a", snap.Slots[1].Page.ID)
	assert.Equal(t, "b", snap.Slots[2].Page.ID)
	assert.False(t, snap.Done)
	require.NotNil(t, snap.CreditsRemaining)
	assert.Equal(t, 5, *snap.CreditsRemaining)
}

func TestApplyRoutesByPageID(t *testing.T) {
	b := newTestBatch(t, "p1", "p2")

	ok := b.Apply(poll.Outcome{
		PageID: "p2",
		State:  poll.StateCompleted,
		Page:   pagesapi.Page{ID: "p2", Status: pagesapi.StatusCompleted, ImageURL: "https://cdn.example.com/p2.png"},
	})
	require.True(t, ok)

	snap := b.Snapshot()
	assert.Equal(t, pagesapi.StatusPending, snap.Slots[0].State)
	assert.Equal(t, poll.StateCompleted, snap.Slots[1].State)
	assert.Equal(t, "https://cdn.example.com/p2.png", snap.Slots[1].Page.ImageURL)
	assert.False(t, snap.Done)
}

func TestApplyTerminalSlotNotOverwritten(t *testing.T) {
	b := newTestBatch(t, "p1")

	require.True(t, b.Apply(poll.Outcome{PageID: "p1", State: poll.StateFailed, ErrorMessage: "生成失败"}))
	// 终态不可逆，第二次写入被拒绝
	assert.False(t, b.Apply(poll.Outcome{PageID: "p1", State: poll.StateCompleted}))

	snap := b.Snapshot()
	assert.Equal(t, poll.StateFailed, snap.Slots[0].State)
	assert.Equal(t, "生成失败", snap.Slots[0].ErrorMessage)
}

func TestApplyUnknownPageIgnored(t *testing.T) {
	b := newTestBatch(t, "p1")
	assert.False(t, b.Apply(poll.Outcome{PageID: "stranger", State: poll.StateCompleted}))
	assert.Equal(t, pagesapi.StatusPending, b.Snapshot().Slots[0].State)
}

func TestBatchDoneWhenAllTerminal(t *testing.T) {
	b := newTestBatch(t, "p1", "p2", "p3")
	b.Apply(poll.Outcome{PageID: "p1", State: poll.StateCompleted})
	b.Apply(poll.Outcome{PageID: "p2", State: poll.StateTimedOut})
	assert.False(t, b.Snapshot().Done)

	b.Apply(poll.Outcome{PageID: "p3", State: poll.StateCanceled})
	assert.True(t, b.Snapshot().Done)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	b := newTestBatch(t, "p1", "p2")
	events, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Apply(poll.Outcome{PageID: "p1", State: poll.StateCompleted, Page: pagesapi.Page{ID: "p1", Status: pagesapi.StatusCompleted}})

	select {
	case ev := <-events:
		assert.Equal(t, "p1", ev.PageID)
		assert.Equal(t, poll.StateCompleted, ev.State)
		assert.False(t, ev.BatchDone)
	case <-time.After(time.Second):
		t.Fatal("未收到订阅事件")
	}

	b.Apply(poll.Outcome{PageID: "p2", State: poll.StateFailed, ErrorMessage: "生成失败"})

	select {
	case ev := <-events:
		assert.Equal(t, "p2", ev.PageID)
		assert.True(t, ev.BatchDone)
	case <-time.After(time.Second):
		t.Fatal("未收到订阅事件")
	}
}

func TestApplyConcurrentWithUnsubscribe(t *testing.T) {
	// Apply 的事件投递与退订的 close 并发进行时不得触发
	// 向已关闭通道发送的 panic
	for i := 0; i < 5000; i++ {
		b := newTestBatch(t, "p1")
		_, unsubscribe := b.Subscribe()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Apply(poll.Outcome{PageID: "p1", State: poll.StateCompleted})
		}()
		go func() {
			defer wg.Done()
			unsubscribe()
		}()
		wg.Wait()
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBatch(t, "p1")
	events, unsubscribe := b.Subscribe()
	unsubscribe()

	b.Apply(poll.Outcome{PageID: "p1", State: poll.StateCompleted})

	_, open := <-events
	assert.False(t, open)
}

func TestStoreGet(t *testing.T) {
	s := NewStore()
	b := s.CreateBatch([]pagesapi.Page{{ID: "p1"}}, nil, nil)

	got, ok := s.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, b.ID, got.ID)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestBatchCancelInvokesHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewStore().CreateBatch([]pagesapi.Page{{ID: "p1"}}, nil, cancel)

	b.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("取消句柄未被调用")
	}
}

func TestCreateBatchAlreadyTerminalPage(t *testing.T) {
	// 后端在提交响应里直接给出 completed 的页面也计入完成判定
	b := NewStore().CreateBatch([]pagesapi.Page{
		{ID: "done", Status: pagesapi.StatusCompleted},
	}, nil, nil)
	assert.True(t, b.Snapshot().Done)
}
