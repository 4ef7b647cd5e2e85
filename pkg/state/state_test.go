package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

type classifierFunc func(gocv.Mat) map[string]float64

func (f classifierFunc) Classify(m gocv.Mat) map[string]float64 { return f(m) }

func testCatalog() *Catalog {
	return &Catalog{
		Root: ".",
		Configs: map[string]*Config{
			"jogo_aberto":         {DisplayName: "游戏主界面", ImagePath: "a.png", Confidence: 0.75},
			"inside_shop":         {DisplayName: "商店内", ImagePath: "b.png", Confidence: 0.8},
			"aba_tutorial_colher": {DisplayName: "教程弹窗", ImagePath: "c.png", Confidence: 0.85},
			// 主界面模板在商店里也常误命中，让位给商店状态
			"tela_fazenda": {DisplayName: "农场画面", ImagePath: "d.png", Confidence: 0.75,
				Priority: []string{"inside_shop"}},
		},
	}
}

func TestDetermineBestStateNoMatches(t *testing.T) {
	m := NewMonitor(testCatalog(), nil)
	if got := m.determineBestState(nil); got != Unknown {
		t.Errorf("无命中时 = %q，期望 %q", got, Unknown)
	}
}

func TestDetermineBestStateHighestConfidence(t *testing.T) {
	m := NewMonitor(testCatalog(), nil)
	matches := map[string]float64{
		"jogo_aberto": 0.82,
		"inside_shop": 0.91,
	}
	if got := m.determineBestState(matches); got != "inside_shop" {
		t.Errorf("最佳状态 = %q，期望 inside_shop", got)
	}
}

func TestDetermineBestStatePriorityYields(t *testing.T) {
	m := NewMonitor(testCatalog(), nil)

	// tela_fazenda 置信度更高，但 inside_shop 同时命中时应让位
	matches := map[string]float64{
		"tela_fazenda": 0.95,
		"inside_shop":  0.85,
	}
	if got := m.determineBestState(matches); got != "inside_shop" {
		t.Errorf("最佳状态 = %q，期望让位后的 inside_shop", got)
	}

	// 单独命中时正常当选
	matches = map[string]float64{"tela_fazenda": 0.95}
	if got := m.determineBestState(matches); got != "tela_fazenda" {
		t.Errorf("最佳状态 = %q，期望 tela_fazenda", got)
	}
}

func TestDetermineBestStateTieBreak(t *testing.T) {
	m := NewMonitor(testCatalog(), nil)
	matches := map[string]float64{
		"jogo_aberto": 0.8,
		"inside_shop": 0.8,
	}
	// 同分按状态 ID 升序，结果必须确定
	for i := 0; i < 10; i++ {
		if got := m.determineBestState(matches); got != "inside_shop" {
			t.Fatalf("第 %d 次最佳状态 = %q，期望 inside_shop", i, got)
		}
	}
}

func TestMonitorStateChangeCallbacks(t *testing.T) {
	var matches map[string]float64
	var mu sync.Mutex
	classifier := classifierFunc(func(gocv.Mat) map[string]float64 {
		mu.Lock()
		defer mu.Unlock()
		return matches
	})

	m := NewMonitor(testCatalog(), classifier)

	type change struct{ prev, cur string }
	var changes []change
	id := m.RegisterCallback(func(prev, cur string) {
		changes = append(changes, change{prev, cur})
	})

	frame := gocv.NewMat()
	defer frame.Close()

	setMatches := func(v map[string]float64) {
		mu.Lock()
		matches = v
		mu.Unlock()
	}

	setMatches(map[string]float64{"jogo_aberto": 0.9})
	m.Detect(frame)
	// 同一状态重复检测不应再次触发回调
	m.Detect(frame)
	setMatches(map[string]float64{"inside_shop": 0.92})
	m.Detect(frame)

	if len(changes) != 2 {
		t.Fatalf("回调触发次数 = %d，期望 2", len(changes))
	}
	if changes[0] != (change{"unknown", "jogo_aberto"}) {
		t.Errorf("第一次变化 = %+v", changes[0])
	}
	if changes[1] != (change{"jogo_aberto", "inside_shop"}) {
		t.Errorf("第二次变化 = %+v", changes[1])
	}

	if m.Current() != "inside_shop" || m.Previous() != "jogo_aberto" {
		t.Errorf("当前/上一状态 = %q/%q", m.Current(), m.Previous())
	}

	// 注销后不再触发
	m.UnregisterCallback(id)
	setMatches(nil)
	m.Detect(frame)
	if len(changes) != 2 {
		t.Errorf("注销后仍触发了回调，次数 = %d", len(changes))
	}
	if m.Current() != Unknown {
		t.Errorf("无命中后当前状态 = %q，期望 unknown", m.Current())
	}
}

func TestMonitorCallbackPanicIsolated(t *testing.T) {
	classifier := classifierFunc(func(gocv.Mat) map[string]float64 {
		return map[string]float64{"jogo_aberto": 0.9}
	})
	m := NewMonitor(testCatalog(), classifier)

	m.RegisterCallback(func(prev, cur string) {
		panic("回调内部错误")
	})
	fired := false
	m.RegisterCallback(func(prev, cur string) {
		fired = true
	})

	frame := gocv.NewMat()
	defer frame.Close()
	m.Detect(frame)

	if !fired {
		t.Error("前一个回调 panic 不应影响后续回调")
	}
	if m.Current() != "jogo_aberto" {
		t.Errorf("当前状态 = %q，期望 jogo_aberto", m.Current())
	}
}

type stubFrameSource struct {
	mu     sync.Mutex
	frames int
}

func (s *stubFrameSource) TryGet() (gocv.Mat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return gocv.NewMat(), true
}

func TestMonitorStartStop(t *testing.T) {
	classifier := classifierFunc(func(gocv.Mat) map[string]float64 {
		return map[string]float64{"inside_shop": 0.95}
	})
	m := NewMonitor(testCatalog(), classifier, WithCheckInterval(10*time.Millisecond))

	src := &stubFrameSource{}
	m.Start(src)

	deadline := time.Now().Add(2 * time.Second)
	for m.Current() != "inside_shop" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.Stop(time.Second); err != nil {
		t.Fatalf("停止监视失败: %v", err)
	}
	if m.Current() != "inside_shop" {
		t.Errorf("监视循环未识别出状态，当前 = %q", m.Current())
	}
	if m.Duration() <= 0 {
		t.Error("状态持续时间应大于零")
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "states.json")
	content := `{
  "states": {
    "jogo_aberto": {
      "display_name": "游戏主界面",
      "image_path": "dataset/states/jogo_aberto.png",
      "roi": [0, 0, 200, 100],
      "confidence": 0.8,
      "rgb": true
    },
    "loja": {
      "image_path": "dataset/states/loja.png",
      "use_mask": true
    }
  }
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}

	catalog, err := LoadCatalog(path, "")
	if err != nil {
		t.Fatalf("加载状态目录失败: %v", err)
	}

	cfg := catalog.Configs["jogo_aberto"]
	if cfg.DisplayName != "游戏主界面" || cfg.Confidence != 0.8 {
		t.Errorf("配置解析不符: %+v", cfg)
	}
	if cfg.ROI != [4]int{0, 0, 200, 100} {
		t.Errorf("ROI = %v", cfg.ROI)
	}
	if !cfg.RGB {
		t.Error("rgb 标志未解析")
	}

	// 缺省值填充
	loja := catalog.Configs["loja"]
	if loja.DisplayName != "loja" {
		t.Errorf("缺省展示名 = %q，期望状态 ID", loja.DisplayName)
	}
	if loja.Confidence != DefaultConfidence {
		t.Errorf("缺省阈值 = %v", loja.Confidence)
	}
	if catalog.Root != dir {
		t.Errorf("根目录 = %q，期望 %q", catalog.Root, dir)
	}
}

func TestClassifierTemplateOptions(t *testing.T) {
	catalog := &Catalog{
		Root: ".",
		Configs: map[string]*Config{
			"com_mascara": {ImagePath: "a.png", Confidence: 0.8, UseMask: true},
			"com_rgb":     {ImagePath: "b.png", Confidence: 0.8, RGB: true},
			"simples":     {ImagePath: "c.png", Confidence: 0.8},
		},
	}

	tc := NewTemplateClassifier(catalog)
	defer tc.Close()

	if !tc.templates["com_mascara"].UseMask {
		t.Error("use_mask 状态应启用掩码匹配")
	}
	if !tc.templates["com_rgb"].RGB {
		t.Error("rgb 状态应启用三通道校验")
	}
	if tc.templates["simples"].UseMask || tc.templates["simples"].RGB {
		t.Error("普通状态不应启用掩码或三通道校验")
	}
}

func TestLoadCatalogInvalid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "empty.json")
	os.WriteFile(path, []byte(`{"states": {}}`), 0644)
	if _, err := LoadCatalog(path, ""); err == nil {
		t.Error("空 states 应报错")
	}

	path = filepath.Join(dir, "noimg.json")
	os.WriteFile(path, []byte(`{"states": {"x": {"display_name": "x"}}}`), 0644)
	if _, err := LoadCatalog(path, ""); err == nil {
		t.Error("缺少 image_path 应报错")
	}
}
