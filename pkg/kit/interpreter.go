package kit

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/farmbot/internal/logger"
	"github.com/zoeyai/farmbot/pkg/state"
	"github.com/zoeyai/farmbot/pkg/vision/cv"
)

// Device 动作执行所需的设备操作
type Device interface {
	Tap(x, y int) error
	SendText(text string) error
}

// Vision 动作执行所需的视觉能力
type Vision interface {
	Screenshot() (gocv.Mat, error)
	Find(template string, roi cv.ROI, threshold float64, useMask bool) (*cv.MatchResult, error)
	FindIn(frame gocv.Mat, template string, roi cv.ROI, threshold float64, useMask bool) (*cv.MatchResult, error)
}

// StateReader 状态机的只读视图
type StateReader interface {
	Current() string
}

// CustomerPlaceholder send_keys 文本中的客户编号占位符
const CustomerPlaceholder = "<customer_id>"

// 模板查找的重试与补点节奏
const (
	searchRetryDelay  = 300 * time.Millisecond
	verifyRetryDelay  = 500 * time.Millisecond
	verifyInitialWait = 1 * time.Second
	verifyOffsetWait  = 1400 * time.Millisecond
)

// clickOffsets 点击未生效时的环形补点偏移
var clickOffsets = [8][2]int{
	{0, 10}, {0, -10}, {10, 0}, {-10, 0},
	{10, 10}, {-10, 10}, {10, -10}, {-10, -10},
}

// Interpreter 动作解释器
//
// 不持有状态机流转逻辑，只执行单个动作并返回结果，
// 同一动作重复执行语义一致。
type Interpreter struct {
	device Device
	vision Vision
	states StateReader

	cfg   *Config
	items *ItemsConfig

	customerID string
	debugDir   string
	text       TextReader
	sleep      func(time.Duration)
	log        *logger.Logger

	stats Stats
}

// InterpreterOption 解释器配置选项
type InterpreterOption func(*Interpreter)

// WithCustomerID 设置 send_keys 占位符替换的客户编号
func WithCustomerID(id string) InterpreterOption {
	return func(in *Interpreter) { in.customerID = id }
}

// WithDebugDir 设置调试目录，模板命中时落盘标注帧
func WithDebugDir(dir string) InterpreterOption {
	return func(in *Interpreter) { in.debugDir = dir }
}

// WithSleep 替换等待实现，测试用
func WithSleep(fn func(time.Duration)) InterpreterOption {
	return func(in *Interpreter) { in.sleep = fn }
}

// WithInterpreterLogger 替换日志器
func WithInterpreterLogger(log *logger.Logger) InterpreterOption {
	return func(in *Interpreter) { in.log = log }
}

// NewInterpreter 创建动作解释器
func NewInterpreter(device Device, vision Vision, states StateReader, cfg *Config, items *ItemsConfig, opts ...InterpreterOption) *Interpreter {
	in := &Interpreter{
		device: device,
		vision: vision,
		states: states,
		cfg:    cfg,
		items:  items,
		sleep:  time.Sleep,
		log:    logger.WithPrefix("KIT"),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Stats 返回累计统计
func (in *Interpreter) Stats() Stats {
	return in.stats
}

// Execute 执行单个动作
//
// 动作参数已在配置加载时校验，这里的取参失败属于编程错误而非脚本错误。
func (in *Interpreter) Execute(action Action) ActionResult {
	in.stats.ActionsRun++
	result := in.dispatch(action)
	if !result.OK {
		in.stats.ActionsFailed++
	}
	return result
}

func (in *Interpreter) dispatch(action Action) ActionResult {
	if action.Description != "" {
		in.log.Info("动作: %s", action.Description)
	}

	switch action.Type {
	case ActionClick:
		x, y, err := action.clickParams()
		if err != nil {
			return failure(err)
		}
		if err := in.device.Tap(x, y); err != nil {
			return failure(fmt.Errorf("点击 (%d, %d) 失败: %w", x, y, err))
		}
		return success()

	case ActionWait:
		seconds, err := action.waitParams()
		if err != nil {
			return failure(err)
		}
		in.sleep(time.Duration(seconds * float64(time.Second)))
		return success()

	case ActionSendKeys:
		text, err := action.textParam()
		if err != nil {
			return failure(err)
		}
		text = strings.ReplaceAll(text, CustomerPlaceholder, in.customerID)
		if err := in.device.SendText(text); err != nil {
			return failure(fmt.Errorf("输入文本失败: %w", err))
		}
		return success()

	case ActionSearch:
		return in.searchTemplate(action)

	case ActionVerifyState:
		return in.verifyState(action)

	case ActionCheckStates:
		return in.checkMultipleStates(action)

	case ActionScanBoxes:
		return in.scanAndRestock(action)

	default:
		return failure(fmt.Errorf("未知动作类型: %s", action.Type))
	}
}

// searchTemplate 在屏幕上查找模板并点击
//
// 配置了 VerifyState 时点击后等待状态切换，未切换则按环形偏移补点。
func (in *Interpreter) searchTemplate(action Action) ActionResult {
	template, roi, err := action.searchParams()
	if err != nil {
		return failure(err)
	}

	retryDelay := searchRetryDelay
	if action.VerifyState != "" {
		retryDelay = verifyRetryDelay
	}

	for attempt := 1; attempt <= action.Attempts; attempt++ {
		result, err := in.find(template, roi, action.Threshold, action.UseMask)
		if err != nil {
			in.log.Error("查找模板 %s 出错: %v", template, err)
		} else if result != nil {
			in.log.Info("找到模板 %s 位置 (%d, %d) 置信度 %.4f",
				template, result.Result.X, result.Result.Y, result.Confidence)
			return in.tapMatch(action, result.Result)
		} else {
			in.log.Warn("模板 %s 未找到 (%d/%d)", template, attempt, action.Attempts)
		}

		if attempt < action.Attempts {
			in.sleep(retryDelay)
		}
	}
	return failure(fmt.Errorf("模板 %s 经 %d 次尝试仍未找到", template, action.Attempts))
}

// find 查找模板，配置了调试目录时命中帧带标注落盘
func (in *Interpreter) find(template string, roi cv.ROI, threshold float64, useMask bool) (*cv.MatchResult, error) {
	if in.debugDir == "" {
		return in.vision.Find(template, roi, threshold, useMask)
	}

	frame, err := in.vision.Screenshot()
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	result, err := in.vision.FindIn(frame, template, roi, threshold, useMask)
	if err != nil || result == nil {
		return result, err
	}

	base := strings.TrimSuffix(filepath.Base(template), filepath.Ext(template))
	name := fmt.Sprintf("%s_%d.png", base, time.Now().UnixMilli())
	if saveErr := cv.SaveAnnotated(filepath.Join(in.debugDir, name), frame, result, base); saveErr != nil {
		in.log.Warn("保存调试标注失败: %v", saveErr)
	}
	return result, nil
}

// tapMatch 点击匹配位置，必要时校验状态并环形补点
func (in *Interpreter) tapMatch(action Action, pos cv.Point) ActionResult {
	if err := in.device.Tap(pos.X, pos.Y); err != nil {
		return failure(fmt.Errorf("点击 (%d, %d) 失败: %w", pos.X, pos.Y, err))
	}
	if action.VerifyState == "" {
		return success()
	}

	in.sleep(verifyInitialWait)
	if in.states.Current() == action.VerifyState {
		return success()
	}

	in.log.Warn("点击后未进入状态 %s，尝试偏移补点", action.VerifyState)
	for i, offset := range clickOffsets {
		x, y := pos.X+offset[0], pos.Y+offset[1]
		in.log.Info("偏移补点 %d/%d: (%d, %d)", i+1, len(clickOffsets), x, y)
		if err := in.device.Tap(x, y); err != nil {
			continue
		}
		in.sleep(verifyOffsetWait)
		if in.states.Current() == action.VerifyState {
			return success()
		}
	}
	return failure(fmt.Errorf("点击后未能进入状态 %s", action.VerifyState))
}

// verifyState 轮询等待进入指定状态
func (in *Interpreter) verifyState(action Action) ActionResult {
	expected, attempts, err := action.verifyParams()
	if err != nil {
		return failure(err)
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		current := in.states.Current()
		if current == expected {
			in.log.Info("状态校验通过: %s", expected)
			return success()
		}
		in.log.Warn("等待状态 %s，当前 %s (%d/%d)", expected, current, attempt, attempts)
		if attempt < attempts {
			in.sleep(time.Duration(action.WaitTime * float64(time.Second)))
		}
	}
	return failure(fmt.Errorf("经 %d 次尝试仍未进入状态 %s", attempts, expected))
}

// checkMultipleStates 等待进入候选状态之一，返回实际命中的状态
//
// unknown 视为画面过渡，不消耗尝试次数；为避免长期停在 unknown，
// 总轮询次数另设上限。
func (in *Interpreter) checkMultipleStates(action Action) ActionResult {
	expected, err := action.stateListParams()
	if err != nil {
		return failure(err)
	}

	attempts := action.Attempts
	if attempts <= 0 {
		attempts = DefaultCheckAttempts
	}
	delay := time.Duration(action.WaitTime * float64(time.Second))
	maxPolls := attempts * 4

	attempt := 0
	for poll := 0; poll < maxPolls && attempt < attempts; poll++ {
		current := in.states.Current()

		if current == state.Unknown {
			in.log.Debug("画面过渡中，继续等待")
			in.sleep(delay)
			continue
		}

		for _, id := range expected {
			if current == id {
				in.log.Info("命中候选状态: %s", current)
				return ActionResult{OK: true, DetectedState: current}
			}
		}

		attempt++
		in.log.Warn("当前状态 %s 不在候选 %v 中 (%d/%d)", current, expected, attempt, attempts)
		in.sleep(delay)
	}

	return ActionResult{
		DetectedState: in.states.Current(),
		Err:           fmt.Errorf("经 %d 次尝试仍未进入候选状态 %v", attempts, expected),
	}
}
