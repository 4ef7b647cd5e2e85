package vision

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/zoeyai/farmbot/pkg/vision/cv"
)

// fakeSource 返回固定合成画面的截图来源
type fakeSource struct {
	frame gocv.Mat
	calls int
	err   error
}

func (f *fakeSource) Screenshot() (gocv.Mat, error) {
	f.calls++
	if f.err != nil {
		return gocv.NewMat(), f.err
	}
	return f.frame.Clone(), nil
}

// makeFrame 生成带纹理的灰度测试画面
func makeFrame(w, h int) gocv.Mat {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetUCharAt(y, x, uint8((x*7+y*13)%251))
		}
	}
	return m
}

func writeTemplate(t *testing.T, dir, name string, frame gocv.Mat, region [4]int) {
	t.Helper()
	tmpl := cv.CropImage(frame, region)
	defer tmpl.Close()
	if !gocv.IMWrite(filepath.Join(dir, name), tmpl) {
		t.Fatalf("写入模板失败: %s", name)
	}
}

func TestScreenFind(t *testing.T) {
	dir := t.TempDir()

	frame := makeFrame(320, 240)
	defer frame.Close()

	// 模板取自画面 (100,60)-(140,90)，中心应为 (120,75)
	writeTemplate(t, dir, "alvo.png", frame, [4]int{100, 60, 140, 90})

	source := &fakeSource{frame: frame}
	screen := NewScreen(source, dir)
	defer screen.Close()

	result, err := screen.Find("alvo.png", cv.ROI{}, 0.9, false)
	if err != nil {
		t.Fatalf("查找失败: %v", err)
	}
	if result == nil {
		t.Fatal("期望找到模板")
	}
	if result.Result.X != 120 || result.Result.Y != 75 {
		t.Errorf("中心 = (%d, %d)，期望 (120, 75)", result.Result.X, result.Result.Y)
	}
	if source.calls != 1 {
		t.Errorf("截图次数 = %d，期望 1", source.calls)
	}
}

func TestScreenFindInROI(t *testing.T) {
	dir := t.TempDir()

	frame := makeFrame(320, 240)
	defer frame.Close()
	writeTemplate(t, dir, "alvo.png", frame, [4]int{100, 60, 140, 90})

	screen := NewScreen(&fakeSource{frame: frame}, dir)
	defer screen.Close()

	// ROI 覆盖目标区域时坐标仍为全图坐标系
	result, err := screen.FindIn(frame, "alvo.png", cv.ROI{80, 40, 120, 100}, 0.9, false)
	if err != nil {
		t.Fatalf("查找失败: %v", err)
	}
	if result == nil {
		t.Fatal("期望在 ROI 内找到模板")
	}
	if result.Result.X != 120 || result.Result.Y != 75 {
		t.Errorf("中心 = (%d, %d)，期望 (120, 75)", result.Result.X, result.Result.Y)
	}
}

func TestScreenTemplateCache(t *testing.T) {
	dir := t.TempDir()

	frame := makeFrame(320, 240)
	defer frame.Close()
	writeTemplate(t, dir, "alvo.png", frame, [4]int{100, 60, 140, 90})

	screen := NewScreen(&fakeSource{frame: frame}, dir)
	defer screen.Close()

	for i := 0; i < 3; i++ {
		if _, err := screen.FindIn(frame, "alvo.png", cv.ROI{}, 0.9, false); err != nil {
			t.Fatalf("第 %d 次查找失败: %v", i+1, err)
		}
	}
	if len(screen.templates) != 1 {
		t.Errorf("缓存模板数 = %d，期望 1", len(screen.templates))
	}

	// 不同阈值视为不同缓存项
	if _, err := screen.FindIn(frame, "alvo.png", cv.ROI{}, 0.7, false); err != nil {
		t.Fatalf("查找失败: %v", err)
	}
	if len(screen.templates) != 2 {
		t.Errorf("缓存模板数 = %d，期望 2", len(screen.templates))
	}
}

func TestScreenScreenshotError(t *testing.T) {
	screen := NewScreen(&fakeSource{err: fmt.Errorf("设备离线")}, "")
	defer screen.Close()

	if _, err := screen.Find("alvo.png", cv.ROI{}, 0.8, false); err == nil {
		t.Error("截图失败应返回错误")
	}

	screen2 := NewScreen(nil, "")
	defer screen2.Close()
	if _, err := screen2.Screenshot(); err == nil {
		t.Error("未配置来源应返回错误")
	}
}

func TestScreenAbsoluteTemplatePath(t *testing.T) {
	dir := t.TempDir()

	frame := makeFrame(320, 240)
	defer frame.Close()
	writeTemplate(t, dir, "alvo.png", frame, [4]int{100, 60, 140, 90})

	// root 指向别处，绝对路径应绕过 root 解析
	screen := NewScreen(&fakeSource{frame: frame}, os.TempDir())
	defer screen.Close()

	result, err := screen.FindIn(frame, filepath.Join(dir, "alvo.png"), cv.ROI{}, 0.9, false)
	if err != nil {
		t.Fatalf("查找失败: %v", err)
	}
	if result == nil {
		t.Fatal("期望通过绝对路径找到模板")
	}
}
