// Package vision 提供屏幕视觉服务
//
// Screen 组合截图来源与模板缓存，对外提供"截图 + 模板定位"能力:
//
//	screen := vision.NewScreen(device, "dataset")
//	defer screen.Close()
//
//	result, err := screen.Find("botao_vender.png", cv.ROI{}, 0.8, false)
//	if result != nil {
//	    fmt.Printf("找到目标: (%d, %d)\n", result.Result.X, result.Result.Y)
//	}
package vision

import (
	"fmt"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"github.com/zoeyai/farmbot/pkg/vision/cv"
)

// Source 截图来源，ADB 设备与宿主机屏幕均可满足
type Source interface {
	Screenshot() (gocv.Mat, error)
}

// Screen 屏幕视觉服务
//
// 模板按 文件名+阈值+掩码 缓存，重复查找同一模板不再重复读盘。
// 所有方法并发安全。
type Screen struct {
	source Source
	root   string

	mu        sync.Mutex
	templates map[string]*cv.Template
}

// NewScreen 创建屏幕视觉服务
//
// root 为模板图片根目录，Find/FindIn 的相对模板路径基于该目录解析。
func NewScreen(source Source, root string) *Screen {
	return &Screen{
		source:    source,
		root:      root,
		templates: make(map[string]*cv.Template),
	}
}

// Screenshot 获取一帧最新画面，调用方负责 Close
func (s *Screen) Screenshot() (gocv.Mat, error) {
	if s.source == nil {
		return gocv.NewMat(), fmt.Errorf("未配置截图来源")
	}
	return s.source.Screenshot()
}

// Find 截取一帧最新画面并在其中查找模板
//
// 未找到时返回 (nil, nil)，调用方据此区分"没匹配到"与真正的错误。
func (s *Screen) Find(template string, roi cv.ROI, threshold float64, useMask bool) (*cv.MatchResult, error) {
	frame, err := s.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("截图失败: %w", err)
	}
	defer frame.Close()

	return s.FindIn(frame, template, roi, threshold, useMask)
}

// FindIn 在给定画面中查找模板
//
// 同一帧上多次查找（如逐格扫描货架）应使用本方法，避免重复截图。
func (s *Screen) FindIn(frame gocv.Mat, template string, roi cv.ROI, threshold float64, useMask bool) (*cv.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 模板内部延迟加载并缓存 Mat，匹配需在锁内进行
	tmpl := s.template(template, threshold, useMask)
	return tmpl.MatchInROI(frame, roi)
}

// template 获取缓存的模板，首次使用时创建。调用方须持有 s.mu
func (s *Screen) template(name string, threshold float64, useMask bool) *cv.Template {
	key := fmt.Sprintf("%s|%.3f|%t", name, threshold, useMask)

	if tmpl, ok := s.templates[key]; ok {
		return tmpl
	}

	path := name
	if s.root != "" && !filepath.IsAbs(name) {
		path = filepath.Join(s.root, name)
	}

	opts := []cv.TemplateOption{cv.WithTemplateThreshold(threshold)}
	if useMask {
		opts = append(opts, cv.WithTemplateMask(cv.MaskPath(path)))
	}

	tmpl := cv.NewTemplate(path, opts...)
	s.templates[key] = tmpl
	return tmpl
}

// Close 释放全部缓存的模板资源
func (s *Screen) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tmpl := range s.templates {
		tmpl.Close()
	}
	s.templates = make(map[string]*cv.Template)
}
