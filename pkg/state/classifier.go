package state

import (
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/zoeyai/farmbot/internal/logger"
	"github.com/zoeyai/farmbot/pkg/vision/cv"
)

// Classifier 对单帧画面给出各状态的命中置信度
type Classifier interface {
	Classify(frame gocv.Mat) map[string]float64
}

// TemplateClassifier 基于模板匹配的状态分类器
// 每个状态对应一张模板，逐个在各自 ROI 内匹配
type TemplateClassifier struct {
	catalog   *Catalog
	templates map[string]*cv.Template
	log       *logger.Logger
}

// NewTemplateClassifier 由状态目录构建分类器
func NewTemplateClassifier(catalog *Catalog) *TemplateClassifier {
	templates := make(map[string]*cv.Template, len(catalog.Configs))
	for id, cfg := range catalog.Configs {
		opts := []cv.TemplateOption{cv.WithTemplateThreshold(cfg.Confidence)}
		if cfg.UseMask {
			opts = append(opts, cv.WithTemplateMask(filepath.Join(catalog.Root, cv.MaskPath(cfg.ImagePath))))
		} else if cfg.RGB {
			opts = append(opts, cv.WithTemplateRGB(true))
		}
		templates[id] = cv.NewTemplate(filepath.Join(catalog.Root, cfg.ImagePath), opts...)
	}
	return &TemplateClassifier{
		catalog:   catalog,
		templates: templates,
		log:       logger.WithPrefix("CLASSIFIER"),
	}
}

// Classify 对帧逐状态匹配，返回命中的状态及其置信度
// 单个状态匹配出错只记日志，不影响其它状态
func (tc *TemplateClassifier) Classify(frame gocv.Mat) map[string]float64 {
	matches := make(map[string]float64)
	for id, tmpl := range tc.templates {
		cfg := tc.catalog.Configs[id]
		result, err := tmpl.MatchInROI(frame, cfg.ROI)
		if err != nil {
			tc.log.Error("状态 %s 匹配出错: %v", id, err)
			continue
		}
		if result != nil {
			matches[id] = result.Confidence
		}
	}
	return matches
}

// Close 释放模板缓存
func (tc *TemplateClassifier) Close() {
	for _, tmpl := range tc.templates {
		tmpl.Close()
	}
}
