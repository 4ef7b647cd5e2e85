package kit

import (
	"fmt"
	"sort"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/farmbot/pkg/vision/cv"
)

// 商店出售界面的固定坐标
var (
	itemSelectionTap = cv.Point{X: 140, Y: 231}
	decreaseQtyTap   = cv.Point{X: 378, Y: 173}
	increaseQtyTap   = cv.Point{X: 466, Y: 172}
	maxPriceTap      = cv.Point{X: 401, Y: 242}
	sellTap          = cv.Point{X: 419, Y: 354}
)

// 商店出售界面的固定检测区域
var (
	itemSelectionROI = cv.ROI{170, 146, 174, 208}
	quantityROI      = cv.ROI{363, 156, 122, 43}
)

// 数量数字与已售格子的模板路径，相对模板根目录
const (
	numbersDir      = "numbers"
	soldBoxTemplate = "others/boxvendida.png"
	numberThreshold = 0.85
)

// 补货流程中的固定节奏
const (
	tapSettleDelay   = 20 * time.Millisecond
	menuOpenDelay    = 130 * time.Millisecond
	itemSelectDelay  = 100 * time.Millisecond
	qtyAdjustDelay   = 20 * time.Millisecond
	qtyVerifyDelay   = 100 * time.Millisecond
	priceSetDelay    = 50 * time.Millisecond
	sellConfirmDelay = 120 * time.Millisecond
	collectTapDelay  = 50 * time.Millisecond
	collectFinal     = 200 * time.Millisecond
	itemRetryDelay   = 150 * time.Millisecond
)

// scanAndRestock 扫描货架并补满空格
//
// 两阶段扫描：先在每格检测"已售"并点击收取金币（收取后即为空格），
// 再检测剩余格子是否为空，最后对全部空格执行补货。
func (in *Interpreter) scanAndRestock(action Action) ActionResult {
	emptyTemplate, threshold, err := action.scanParams()
	if err != nil {
		return failure(err)
	}

	emptyBoxes, err := in.scanEmptyBoxes(emptyTemplate, threshold)
	if err != nil {
		return failure(err)
	}
	if len(emptyBoxes) == 0 {
		in.log.Info("没有空格需要补货")
		return success()
	}

	in.log.Info("开始补货 %d 个空格: %v", len(emptyBoxes), emptyBoxes)
	if err := in.processKit(emptyBoxes); err != nil {
		return failure(err)
	}
	return success()
}

// scanEmptyBoxes 返回空格编号（1 起始，升序），已售格子收取后计入空格
func (in *Interpreter) scanEmptyBoxes(emptyTemplate string, threshold float64) ([]int, error) {
	if in.cfg == nil || len(in.cfg.BoxDetection.IndividualROI) == 0 {
		return nil, fmt.Errorf("未配置格子检测区域")
	}

	frame, err := in.vision.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("截图失败: %w", err)
	}
	defer frame.Close()

	var emptyBoxes, soldBoxes []int

	for i, roi := range in.cfg.BoxDetection.IndividualROI {
		boxIndex := i + 1

		sold, err := in.vision.FindIn(frame, soldBoxTemplate, roi, threshold, false)
		if err != nil {
			in.log.Error("检测格子 %d 出错: %v", boxIndex, err)
			continue
		}
		if sold != nil {
			in.log.Info("格子 %d 已售出 (置信度 %.4f)", boxIndex, sold.Confidence)
			soldBoxes = append(soldBoxes, boxIndex)
			emptyBoxes = append(emptyBoxes, boxIndex)
			continue
		}

		empty, err := in.vision.FindIn(frame, emptyTemplate, roi, threshold, false)
		if err != nil {
			in.log.Error("检测格子 %d 出错: %v", boxIndex, err)
			continue
		}
		if empty != nil {
			in.log.Info("格子 %d 为空 (置信度 %.4f)", boxIndex, empty.Confidence)
			emptyBoxes = append(emptyBoxes, boxIndex)
		}
	}

	if len(soldBoxes) > 0 {
		in.collectSoldBoxes(soldBoxes)
	}

	sort.Ints(emptyBoxes)
	in.log.Info("共 %d 个空格: %v", len(emptyBoxes), emptyBoxes)
	return emptyBoxes, nil
}

// collectSoldBoxes 逐格点击收取已售格子的金币
func (in *Interpreter) collectSoldBoxes(soldBoxes []int) {
	in.log.Info("收取 %d 个已售格子的金币", len(soldBoxes))
	for _, boxIndex := range soldBoxes {
		pos, ok := in.cfg.BoxPosition(boxIndex)
		if !ok {
			in.log.Error("格子 %d 未配置点击坐标", boxIndex)
			continue
		}
		if err := in.device.Tap(pos[0], pos[1]); err != nil {
			in.log.Error("收取格子 %d 金币失败: %v", boxIndex, err)
			continue
		}
		in.stats.CoinsCollected++
		in.sleep(collectTapDelay)
	}
	// 等动画结束再继续扫描结果的后续处理
	in.sleep(collectFinal)
}

// processKit 按物品配置把空格补满
//
// 每个物品只使用自己 default_boxes 允许的格子，
// 配置中编号最小的格子按首格数量上架。
func (in *Interpreter) processKit(emptyBoxes []int) error {
	if in.items == nil || len(in.items.Items) == 0 {
		return fmt.Errorf("未配置补货物品")
	}

	empty := make(map[int]bool, len(emptyBoxes))
	for _, b := range emptyBoxes {
		empty[b] = true
	}

	filled := 0
	for i := range in.items.Items {
		item := &in.items.Items[i]
		if len(item.DefaultBoxes) == 0 {
			in.log.Warn("物品 %s 未配置可用格子，跳过", item.Name)
			continue
		}

		for _, boxIndex := range item.DefaultBoxes {
			if !empty[boxIndex] {
				continue
			}
			pos, ok := in.boxPosition(boxIndex)
			if !ok {
				in.log.Error("格子 %d 未配置点击坐标", boxIndex)
				continue
			}

			if err := in.fillBox(boxIndex, pos, item); err != nil {
				in.log.Error("补货格子 %d 失败: %v", boxIndex, err)
				continue
			}
			filled++
			in.stats.BoxesFilled++
		}
	}

	if filled == 0 {
		in.log.Warn("没有补货任何格子")
	} else {
		in.log.Info("共补货 %d 个格子", filled)
	}
	return nil
}

// boxPosition 物品清单里的坐标优先，缺失时回退 kit 配置
func (in *Interpreter) boxPosition(boxIndex int) ([2]int, bool) {
	key := fmt.Sprintf("%d", boxIndex)
	if in.items != nil {
		if pos, ok := in.items.BoxPositions[key]; ok {
			return pos, true
		}
	}
	if in.cfg != nil {
		return in.cfg.BoxPosition(boxIndex)
	}
	return [2]int{}, false
}

// fillBox 把单个格子按配置上架物品
//
// 流程：点格子 → 打开物品菜单 → 选物品 → 校准数量 → 最高价 → 确认出售。
func (in *Interpreter) fillBox(boxIndex int, pos [2]int, item *Item) error {
	target := item.Quantity(boxIndex)
	in.log.Info("补货格子 %d: %s x%d", boxIndex, item.Name, target)

	if err := in.device.Tap(pos[0], pos[1]); err != nil {
		return fmt.Errorf("点击格子失败: %w", err)
	}
	in.sleep(tapSettleDelay)

	if err := in.device.Tap(itemSelectionTap.X, itemSelectionTap.Y); err != nil {
		return fmt.Errorf("打开物品菜单失败: %w", err)
	}
	in.sleep(menuOpenDelay)

	if err := in.selectItem(item); err != nil {
		return err
	}
	in.sleep(itemSelectDelay)

	current, err := in.identifyQuantity()
	if err != nil {
		return err
	}
	if err := in.adjustQuantity(current, target); err != nil {
		return err
	}

	if err := in.device.Tap(maxPriceTap.X, maxPriceTap.Y); err != nil {
		return fmt.Errorf("设置最高价失败: %w", err)
	}
	in.sleep(priceSetDelay)

	if err := in.device.Tap(sellTap.X, sellTap.Y); err != nil {
		return fmt.Errorf("确认出售失败: %w", err)
	}
	in.sleep(sellConfirmDelay)

	in.log.Info("格子 %d 补货完成", boxIndex)
	return nil
}

// selectItem 在物品菜单中定位并点击物品图标
func (in *Interpreter) selectItem(item *Item) error {
	const maxAttempts = 3

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := in.vision.Find(item.TemplatePath, itemSelectionROI, numberThreshold, false)
		if err != nil {
			in.log.Error("查找物品 %s 出错: %v", item.Name, err)
		} else if result != nil {
			in.log.Info("找到物品 %s 位置 (%d, %d)", item.Name, result.Result.X, result.Result.Y)
			if err := in.device.Tap(result.Result.X, result.Result.Y); err != nil {
				return fmt.Errorf("点击物品失败: %w", err)
			}
			return nil
		}

		if attempt < maxAttempts {
			in.log.Warn("物品 %s 未找到 (%d/%d)", item.Name, attempt, maxAttempts)
			in.sleep(itemRetryDelay)
		}
	}
	return fmt.Errorf("物品 %s 经 %d 次尝试仍未找到", item.Name, maxAttempts)
}

// identifyQuantity 识别出售界面当前数量
func (in *Interpreter) identifyQuantity() (int, error) {
	frame, err := in.vision.Screenshot()
	if err != nil {
		return 0, fmt.Errorf("截图失败: %w", err)
	}
	defer frame.Close()

	return in.identifyNumber(frame, quantityROI)
}

// identifyNumber 在指定区域识别数字 1-10，取置信度最高者
func (in *Interpreter) identifyNumber(frame gocv.Mat, roi cv.ROI) (int, error) {
	best := -1
	bestConfidence := 0.0

	for num := 1; num <= 10; num++ {
		template := fmt.Sprintf("%s/%d.png", numbersDir, num)
		result, err := in.vision.FindIn(frame, template, roi, numberThreshold, false)
		if err != nil {
			in.log.Warn("数字 %d 模板检测出错: %v", num, err)
			continue
		}
		if result != nil && result.Confidence > bestConfidence {
			bestConfidence = result.Confidence
			best = num
		}
	}

	if best < 0 {
		return 0, fmt.Errorf("区域 %v 内未识别到数字", roi)
	}
	in.log.Info("识别到数量 %d (置信度 %.4f)", best, bestConfidence)
	return best, nil
}

// adjustQuantity 把数量从 current 调整到 target 并复核
func (in *Interpreter) adjustQuantity(current, target int) error {
	if current == target {
		in.log.Info("数量已是 %d，无需调整", target)
		return nil
	}
	if current <= 0 || current > 10 {
		return fmt.Errorf("当前数量 %d 无效", current)
	}

	diff := target - current
	button := increaseQtyTap
	if diff < 0 {
		diff = -diff
		button = decreaseQtyTap
	}

	in.log.Info("调整数量 %d -> %d (%d 次点击)", current, target, diff)
	for i := 0; i < diff; i++ {
		if err := in.device.Tap(button.X, button.Y); err != nil {
			return fmt.Errorf("调整数量失败: %w", err)
		}
		in.sleep(qtyAdjustDelay)
	}

	in.sleep(qtyVerifyDelay)
	got, err := in.identifyQuantity()
	if err != nil {
		return fmt.Errorf("调整后复核数量失败: %w", err)
	}
	if got != target {
		return fmt.Errorf("数量调整后为 %d，期望 %d", got, target)
	}
	in.log.Info("数量调整为 %d", target)
	return nil
}
