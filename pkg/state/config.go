// Package state 基于模板匹配识别当前游戏画面状态
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zoeyai/farmbot/pkg/vision/cv"
)

// Unknown 未识别状态的哨兵值
const Unknown = "unknown"

// DefaultConfidence 状态匹配默认阈值
const DefaultConfidence = 0.75

// Config 单个状态的识别配置
type Config struct {
	// DisplayName 展示名称
	DisplayName string `json:"display_name"`
	// ImagePath 模板图像路径（相对于模板根目录）
	ImagePath string `json:"image_path"`
	// ROI 搜索区域 [x, y, w, h]，全零表示整帧
	ROI cv.ROI `json:"roi"`
	// Confidence 匹配阈值
	Confidence float64 `json:"confidence"`
	// UseMask 是否使用掩码匹配
	UseMask bool `json:"use_mask"`
	// RGB 无掩码匹配时追加 RGB 三通道校验，用于颜色易混淆的画面
	RGB bool `json:"rgb"`
	// Priority 让位列表：列表中的状态同时命中时本状态落选
	Priority []string `json:"priority"`
}

// Catalog 状态目录
type Catalog struct {
	// Root 模板路径的解析根目录
	Root string
	// Configs 按状态 ID 索引的配置
	Configs map[string]*Config
}

type catalogFile struct {
	States map[string]*Config `json:"states"`
}

// LoadCatalog 从 JSON 文件加载状态目录
// root 为模板相对路径的根目录，空则使用配置文件所在目录
func LoadCatalog(path, root string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取状态配置失败: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析状态配置失败: %w", err)
	}
	if len(file.States) == 0 {
		return nil, fmt.Errorf("状态配置缺少 states 段: %s", path)
	}

	if root == "" {
		root = filepath.Dir(path)
	}

	c := &Catalog{Root: root, Configs: file.States}
	for id, cfg := range c.Configs {
		if cfg.ImagePath == "" {
			return nil, fmt.Errorf("状态 %s 缺少 image_path", id)
		}
		if cfg.DisplayName == "" {
			cfg.DisplayName = id
		}
		if cfg.Confidence <= 0 {
			cfg.Confidence = DefaultConfidence
		}
	}
	return c, nil
}

// DisplayName 返回状态的展示名称，未配置时回退为状态 ID
func (c *Catalog) DisplayName(stateID string) string {
	if cfg, ok := c.Configs[stateID]; ok {
		return cfg.DisplayName
	}
	return stateID
}
