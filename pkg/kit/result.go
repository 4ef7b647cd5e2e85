package kit

// ActionResult 单个动作的执行结果
type ActionResult struct {
	// OK 动作是否成功
	OK bool
	// DetectedState check_multiple_states 实际命中的状态 ID，其余动作为空
	DetectedState string
	// Err 失败原因，成功时为 nil
	Err error
}

func success() ActionResult {
	return ActionResult{OK: true}
}

func failure(err error) ActionResult {
	return ActionResult{Err: err}
}

// Stats 一次 kit 运行的统计
type Stats struct {
	// Iterations 主循环执行的轮数
	Iterations int
	// ActionsRun 实际执行的动作总数
	ActionsRun int
	// ActionsFailed 失败的动作数
	ActionsFailed int
	// BoxesFilled 本次运行补货成功的格子数
	BoxesFilled int
	// CoinsCollected 本次运行收取金币的格子数
	CoinsCollected int
	// Restarts 因中断状态触发的重启次数
	Restarts int
}
