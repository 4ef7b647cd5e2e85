package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"strings"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func newTestFrame(marker int) gocv.Mat {
	mat := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1)
	mat.SetUCharAt(0, 0, uint8(marker))
	return mat
}

func TestFrameQueueDropOldest(t *testing.T) {
	q := NewFrameQueue(3)
	defer q.Close()

	for i := 1; i <= 5; i++ {
		if !q.Put(newTestFrame(i)) {
			t.Fatalf("放入第 %d 帧失败", i)
		}
	}

	if q.Len() != 3 {
		t.Fatalf("队列长度 = %d，期望 3", q.Len())
	}

	// 1、2 号帧应已被丢弃，队头是 3 号
	frame, ok := q.TryGet()
	if !ok {
		t.Fatal("队列非空但取帧失败")
	}
	defer frame.Close()
	if marker := frame.GetUCharAt(0, 0); marker != 3 {
		t.Errorf("队头帧标记 = %d，期望 3", marker)
	}
}

func TestFrameQueueTryGetEmpty(t *testing.T) {
	q := NewFrameQueue(2)
	defer q.Close()

	if _, ok := q.TryGet(); ok {
		t.Error("空队列 TryGet 应返回 false")
	}
}

func TestFrameQueueTryGetLatest(t *testing.T) {
	q := NewFrameQueue(5)
	defer q.Close()

	for i := 1; i <= 4; i++ {
		q.Put(newTestFrame(i))
	}

	frame, ok := q.TryGetLatest()
	if !ok {
		t.Fatal("取最新帧失败")
	}
	defer frame.Close()
	if marker := frame.GetUCharAt(0, 0); marker != 4 {
		t.Errorf("最新帧标记 = %d，期望 4", marker)
	}
	if q.Len() != 0 {
		t.Errorf("取最新帧后队列长度 = %d，期望 0", q.Len())
	}
}

func TestFrameQueueClosedPut(t *testing.T) {
	q := NewFrameQueue(2)
	q.Close()

	if q.Put(newTestFrame(1)) {
		t.Error("关闭后 Put 应返回 false")
	}
}

// fakeSource 可控的帧来源
type fakeSource struct {
	mu       sync.Mutex
	captures int
	failFrom int // 从第 n 次开始失败，0 表示不失败
}

func (s *fakeSource) Screenshot() (gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures++
	if s.failFrom > 0 && s.captures >= s.failFrom {
		return gocv.Mat{}, fmt.Errorf("模拟截图失败")
	}
	return newTestFrame(s.captures), nil
}

func (s *fakeSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

func TestProducerCapturesFrames(t *testing.T) {
	src := &fakeSource{}
	q := NewFrameQueue(5)
	defer q.Close()

	p := NewProducer(src, q, WithFPS(50))
	p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for src.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := p.Stop(time.Second); err != nil {
		t.Fatalf("停止采集失败: %v", err)
	}

	if src.count() < 3 {
		t.Errorf("采集次数 = %d，期望至少 3", src.count())
	}
	if q.Len() == 0 {
		t.Error("队列中应有帧")
	}
}

func TestProducerStopsAfterMaxFailures(t *testing.T) {
	src := &fakeSource{failFrom: 1}
	q := NewFrameQueue(5)
	defer q.Close()

	p := NewProducer(src, q, WithFPS(50), WithMaxFailures(2))
	p.Start()

	// 连续失败达到上限后采集线程应自行退出
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		t.Fatal("采集线程未在失败上限后退出")
	}

	if src.count() < 2 {
		t.Errorf("采集次数 = %d，期望至少 2", src.count())
	}
}

func TestEncodePreview(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	url, err := EncodePreview(frame, DefaultPreviewWidth, 80)
	if err != nil {
		t.Fatalf("编码预览失败: %v", err)
	}

	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("预览应为 JPEG data URL, 实际前缀 %q", url[:30])
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("base64 解码失败: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("预览不是合法 JPEG: %v", err)
	}

	// 640 宽的帧应等比缩小到 480x360
	if img.Bounds().Dx() != DefaultPreviewWidth || img.Bounds().Dy() != 360 {
		t.Errorf("预览尺寸 = %dx%d，期望 %dx360",
			img.Bounds().Dx(), img.Bounds().Dy(), DefaultPreviewWidth)
	}
}

func TestEncodePreviewNoDownscale(t *testing.T) {
	frame := gocv.NewMatWithSize(100, 200, gocv.MatTypeCV8UC3)
	defer frame.Close()

	url, err := EncodePreview(frame, 0, 80)
	if err != nil {
		t.Fatalf("编码预览失败: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/jpeg;base64,"))
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("预览不是合法 JPEG: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 100 {
		t.Errorf("maxWidth=0 时不应缩放, 实际 %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestEncodePreviewEmptyFrame(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := EncodePreview(empty, DefaultPreviewWidth, 80); err == nil {
		t.Error("空帧应返回错误")
	}
}
