package kit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zoeyai/farmbot/internal/logger"
	"github.com/zoeyai/farmbot/pkg/state"
)

// 主循环默认参数
const (
	DefaultMaxIterations  = 20
	DefaultGoalState      = "inside_shop"
	DefaultInterruptState = "aba_tutorial_colher"
	DefaultInitialState   = "jogo_aberto"
)

// 主循环的节奏
const (
	iterationPause    = 500 * time.Millisecond
	unknownStatePause = 1 * time.Second
)

// StateWatcher 状态机的订阅视图
type StateWatcher interface {
	StateReader
	RegisterCallback(fn state.Callback) int
	UnregisterCallback(id int)
}

// Runner 按状态驱动的 kit 主循环
//
// 每轮读取当前状态并执行其动作脚本；状态在执行中途变化时中止
// 本轮脚本重新评估，命中中断状态时重启整个流程。
type Runner struct {
	name   string
	cfg    *Config
	interp *Interpreter
	states StateWatcher

	maxIterations  int
	goalState      string
	interruptState string
	initialState   string

	sleep func(time.Duration)
	log   *logger.Logger

	mu             sync.Mutex
	stateChanged   bool
	pendingRestart bool
}

// RunnerOption 主循环配置选项
type RunnerOption func(*Runner)

// WithMaxIterations 设置主循环轮数上限
func WithMaxIterations(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithGoalState 设置目标状态，到达后结束运行
func WithGoalState(id string) RunnerOption {
	return func(r *Runner) { r.goalState = id }
}

// WithInterruptState 设置中断状态，命中后重启流程
func WithInterruptState(id string) RunnerOption {
	return func(r *Runner) { r.interruptState = id }
}

// WithInitialState 设置流程起点状态，check_multiple_states 命中它时回到起点
func WithInitialState(id string) RunnerOption {
	return func(r *Runner) { r.initialState = id }
}

// WithRunnerSleep 替换等待实现，测试用
func WithRunnerSleep(fn func(time.Duration)) RunnerOption {
	return func(r *Runner) { r.sleep = fn }
}

// NewRunner 创建 kit 主循环
func NewRunner(name string, cfg *Config, interp *Interpreter, states StateWatcher, opts ...RunnerOption) *Runner {
	r := &Runner{
		name:           name,
		cfg:            cfg,
		interp:         interp,
		states:         states,
		maxIterations:  DefaultMaxIterations,
		goalState:      DefaultGoalState,
		interruptState: DefaultInterruptState,
		initialState:   DefaultInitialState,
		sleep:          time.Sleep,
		log:            logger.WithPrefix(strings.ToUpper(name)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// onStateChange 状态机回调，只置标志，流转由主循环处理
func (r *Runner) onStateChange(previous, current string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stateChanged = true
	if current == r.interruptState {
		r.log.Warn("检测到中断状态 %s，准备重启流程", current)
		r.pendingRestart = true
	} else {
		r.log.Info("状态变化: %s -> %s", previous, current)
	}
}

// resetFlags 每轮开始前清空状态标志
func (r *Runner) resetFlags() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateChanged = false
	r.pendingRestart = false
}

// consumeStateChanged 读取并清空状态变化标志
func (r *Runner) consumeStateChanged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := r.stateChanged
	r.stateChanged = false
	return changed
}

// consumePendingRestart 读取并清空重启标志
func (r *Runner) consumePendingRestart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	restart := r.pendingRestart
	r.pendingRestart = false
	return restart
}

// Run 执行 kit 直到到达目标状态或轮数耗尽
//
// 动作内部的 panic 在这里收口为错误返回，主循环不拖垮进程。
func (r *Runner) Run(ctx context.Context) (stats Stats, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("kit 执行发生未预期错误: %v", rec)
			r.finish(&stats)
			err = fmt.Errorf("kit 执行发生未预期错误: %v", rec)
		}
	}()

	r.log.Info("开始执行 kit %s", r.name)

	callbackID := r.states.RegisterCallback(r.onStateChange)
	defer r.states.UnregisterCallback(callbackID)

	reachedGoal := false

	for iteration := 1; iteration <= r.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			r.finish(&stats)
			return stats, err
		}
		stats.Iterations = iteration
		r.resetFlags()

		current := r.states.Current()
		r.log.Info("第 %d/%d 轮，当前状态: %s", iteration, r.maxIterations, current)

		script, ok := r.cfg.States[current]
		if !ok {
			r.handleUnknownState(current)
			r.sleep(iterationPause)
			continue
		}

		interrupted, restarted, err := r.runScript(current, script)
		if err != nil {
			r.finish(&stats)
			return stats, err
		}
		if restarted {
			stats.Restarts++
		}

		if current == r.goalState && !interrupted {
			r.log.Info("到达目标状态 %s，kit 执行完成", r.goalState)
			reachedGoal = true
			break
		}

		r.sleep(iterationPause)
	}

	r.finish(&stats)
	if !reachedGoal {
		return stats, fmt.Errorf("执行 %d 轮后仍未到达目标状态 %s", stats.Iterations, r.goalState)
	}
	return stats, nil
}

// runScript 执行一个状态的动作脚本
//
// 返回 interrupted 表示脚本因状态变化或重启提前中止，
// restarted 表示本轮命中了中断状态。
func (r *Runner) runScript(current string, script StateScript) (interrupted, restarted bool, err error) {
	for _, action := range script.Actions {
		result := r.interp.Execute(action)

		// check_multiple_states 命中起点状态意味着流程被带回原点，
		// 中止本轮脚本从头评估
		if result.OK && result.DetectedState == r.initialState && current != r.initialState {
			r.log.Info("流程回到起点状态 %s，重新评估", r.initialState)
			return true, false, nil
		}

		if !result.OK {
			if action.AbortOnFail {
				return false, false, fmt.Errorf("动作 %q 失败: %w", action.Description, result.Err)
			}
			r.log.Error("动作失败，继续执行: %v", result.Err)
		}

		if r.consumePendingRestart() {
			r.log.Warn("中断状态触发，重启流程")
			r.consumeStateChanged()
			return true, true, nil
		}
		if r.consumeStateChanged() {
			r.log.Warn("执行中状态变化，中止本轮脚本")
			return true, false, nil
		}
	}
	return false, false, nil
}

// handleUnknownState 当前状态没有脚本时的兜底
//
// 状态 ID 含 shop 字样时多半已在商店里，直接尝试目标状态的脚本。
func (r *Runner) handleUnknownState(current string) {
	r.log.Warn("状态 %s 没有配置脚本", current)

	if strings.Contains(strings.ToLower(current), "shop") {
		if script, ok := r.cfg.States[r.goalState]; ok {
			r.log.Info("疑似商店画面，尝试执行 %s 的脚本", r.goalState)
			for _, action := range script.Actions {
				r.interp.Execute(action)
			}
			return
		}
	}
	r.sleep(unknownStatePause)
}

// finish 合并解释器的累计统计
func (r *Runner) finish(stats *Stats) {
	is := r.interp.Stats()
	stats.ActionsRun = is.ActionsRun
	stats.ActionsFailed = is.ActionsFailed
	stats.BoxesFilled = is.BoxesFilled
	stats.CoinsCollected = is.CoinsCollected
}
