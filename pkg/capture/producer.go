package capture

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/farmbot/internal/logger"
)

const (
	// DefaultFPS 默认采集帧率
	DefaultFPS = 2.0
	// DefaultMaxFailures 连续失败多少次后停止采集
	DefaultMaxFailures = 2
	// failurePause 单次失败后的短暂停顿
	failurePause = 500 * time.Millisecond
)

// Source 帧来源
// *adb.Controller 与 HostScreen 均实现此接口
type Source interface {
	Screenshot() (gocv.Mat, error)
}

// Producer 帧生产者
// 后台 goroutine 按目标帧率采集画面放入队列
type Producer struct {
	source      Source
	queue       *FrameQueue
	fps         float64
	maxFailures int
	log         *logger.Logger

	stop chan struct{}
	done chan struct{}
}

// ProducerOption 生产者选项
type ProducerOption func(*Producer)

// WithFPS 设置目标帧率
func WithFPS(fps float64) ProducerOption {
	return func(p *Producer) {
		if fps > 0 {
			p.fps = fps
		}
	}
}

// WithMaxFailures 设置连续失败上限
func WithMaxFailures(n int) ProducerOption {
	return func(p *Producer) {
		if n > 0 {
			p.maxFailures = n
		}
	}
}

// NewProducer 创建帧生产者
func NewProducer(source Source, queue *FrameQueue, opts ...ProducerOption) *Producer {
	p := &Producer{
		source:      source,
		queue:       queue,
		fps:         DefaultFPS,
		maxFailures: DefaultMaxFailures,
		log:         logger.WithPrefix("CAPTURE"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start 启动采集 goroutine
func (p *Producer) Start() {
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop()
	p.log.Info("采集已启动，目标帧率 %.1f FPS", p.fps)
}

// Stop 停止采集，最多等待 timeout
func (p *Producer) Stop(timeout time.Duration) error {
	if p.stop == nil {
		return nil
	}
	close(p.stop)

	select {
	case <-p.done:
		p.log.Info("采集已停止")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("等待采集线程退出超时 (%v)", timeout)
	}
}

// loop 采集主循环
// 连续失败达到上限后自行退出，避免对失联设备空转
func (p *Producer) loop() {
	defer close(p.done)

	interval := time.Duration(float64(time.Second) / p.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		start := time.Now()
		frame, err := p.source.Screenshot()
		elapsed := time.Since(start)

		if err != nil {
			failures++
			p.log.Warn("截图失败 (%.0fms) (%d/%d): %v",
				float64(elapsed.Milliseconds()), failures, p.maxFailures, err)
			if failures >= p.maxFailures {
				p.log.Error("连续失败达到上限，采集线程退出")
				return
			}
			select {
			case <-p.stop:
				return
			case <-time.After(failurePause):
			}
			continue
		}

		failures = 0
		if !p.queue.Put(frame) {
			// 队列已关闭
			return
		}
	}
}
