// Package capture 提供帧捕获与有界帧队列
package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// DefaultQueueSize 默认帧队列容量
const DefaultQueueSize = 5

// FrameQueue 有界帧队列
// 队列满时丢弃最旧的帧，保证消费者拿到的总是较新画面。
// 被丢弃和被取走的帧所有权转移给调用方，队列内部帧由队列负责释放。
type FrameQueue struct {
	mu     sync.Mutex
	frames []gocv.Mat
	cap    int
	closed bool
}

// NewFrameQueue 创建帧队列，size <= 0 时使用默认容量
func NewFrameQueue(size int) *FrameQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &FrameQueue{cap: size}
}

// Put 放入一帧
// 队列已关闭时释放帧并返回 false；队列满时先丢弃最旧帧
func (q *FrameQueue) Put(frame gocv.Mat) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		frame.Close()
		return false
	}

	if len(q.frames) >= q.cap {
		oldest := q.frames[0]
		q.frames = q.frames[1:]
		oldest.Close()
	}
	q.frames = append(q.frames, frame)
	return true
}

// TryGet 非阻塞取出最旧的一帧
// 帧的所有权转移给调用方，用完需 Close
func (q *FrameQueue) TryGet() (gocv.Mat, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return gocv.Mat{}, false
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}

// TryGetLatest 非阻塞取出最新的一帧，丢弃更旧的
func (q *FrameQueue) TryGetLatest() (gocv.Mat, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return gocv.Mat{}, false
	}
	latest := q.frames[len(q.frames)-1]
	for _, old := range q.frames[:len(q.frames)-1] {
		old.Close()
	}
	q.frames = q.frames[:0]
	return latest, true
}

// Len 当前队列长度
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Close 关闭队列并释放所有剩余帧
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	for _, f := range q.frames {
		f.Close()
	}
	q.frames = nil
}
