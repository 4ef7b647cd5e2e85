// Package kit 实现商店补货脚本的解释执行
//
// 一个 kit 是一份按游戏状态组织的动作脚本：状态机监测当前画面，
// 执行器按当前状态取出动作序列逐条执行，直到到达目标状态。
package kit

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/zoeyai/farmbot/pkg/vision/cv"
)

// StateScript 单个状态下要执行的动作序列
type StateScript struct {
	Actions []Action `json:"actions"`
}

// BoxDetection 货架格子检测配置
type BoxDetection struct {
	// IndividualROI 每个格子的检测区域，下标 0 对应 1 号格
	IndividualROI []cv.ROI `json:"individual_roi"`
}

// Config 单个 kit 的完整配置
type Config struct {
	States       map[string]StateScript `json:"states"`
	BoxPositions map[string][2]int      `json:"box_positions"`
	BoxDetection BoxDetection           `json:"box_detection"`
}

// LoadConfig 从 JSON 文件加载指定 kit 的配置
//
// 文件顶层以 kit 名为键，一份文件可承载多个 kit。
func LoadConfig(path, kitName string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 kit 配置失败: %w", err)
	}

	var file map[string]*Config
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析 kit 配置失败: %w", err)
	}

	cfg, ok := file[kitName]
	if !ok || cfg == nil {
		return nil, fmt.Errorf("配置文件 %s 中没有 kit %q", path, kitName)
	}
	if len(cfg.States) == 0 {
		return nil, fmt.Errorf("kit %q 未配置任何状态", kitName)
	}

	for stateID := range cfg.States {
		script := cfg.States[stateID]
		for i := range script.Actions {
			action := &script.Actions[i]
			action.normalize()
			if err := action.validate(); err != nil {
				return nil, fmt.Errorf("kit %q 状态 %q 第 %d 个动作: %w", kitName, stateID, i+1, err)
			}
		}
	}
	return cfg, nil
}

// BoxPosition 返回指定格子的点击坐标
func (c *Config) BoxPosition(boxIndex int) ([2]int, bool) {
	pos, ok := c.BoxPositions[fmt.Sprintf("%d", boxIndex)]
	return pos, ok
}

// Item 补货物品配置
type Item struct {
	Name         string `json:"name"`
	TemplatePath string `json:"template_path"`
	// DefaultQuantity 普通格子的上架数量
	DefaultQuantity int `json:"default_quantity"`
	// FirstBoxQuantity 首格的上架数量，通常比普通格少一件
	FirstBoxQuantity int `json:"first_box_quantity"`
	// DefaultBoxes 该物品允许使用的格子编号（1-10）
	DefaultBoxes []int `json:"default_boxes"`
}

// FirstBox 返回配置中编号最小的格子，即该物品的首格
func (it *Item) FirstBox() int {
	if len(it.DefaultBoxes) == 0 {
		return 0
	}
	first := it.DefaultBoxes[0]
	for _, b := range it.DefaultBoxes[1:] {
		if b < first {
			first = b
		}
	}
	return first
}

// Quantity 返回指定格子应上架的数量
func (it *Item) Quantity(boxIndex int) int {
	if boxIndex == it.FirstBox() {
		return it.FirstBoxQuantity
	}
	return it.DefaultQuantity
}

// ItemsConfig 一个 kit 的物品清单
type ItemsConfig struct {
	Items        []Item            `json:"items"`
	BoxPositions map[string][2]int `json:"box_positions"`
}

// LoadItemsConfig 从 JSON 文件加载物品清单
func LoadItemsConfig(path string) (*ItemsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取物品配置失败: %w", err)
	}

	var cfg ItemsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析物品配置失败: %w", err)
	}
	if len(cfg.Items) == 0 {
		return nil, fmt.Errorf("物品配置 %s 为空", path)
	}

	for i := range cfg.Items {
		item := &cfg.Items[i]
		if item.TemplatePath == "" {
			return nil, fmt.Errorf("物品 %q 缺少 template_path", item.Name)
		}
		// 数量滑块只支持 1~10
		item.DefaultQuantity = clampQuantity(item.DefaultQuantity, 10)
		item.FirstBoxQuantity = clampQuantity(item.FirstBoxQuantity, 9)
		sort.Ints(item.DefaultBoxes)
	}
	return &cfg, nil
}

// clampQuantity 把上架数量收敛到 1~10，未填时取默认值
func clampQuantity(q, fallback int) int {
	if q <= 0 {
		return fallback
	}
	if q > 10 {
		return 10
	}
	return q
}
