package kit

import (
	"fmt"

	"github.com/zoeyai/farmbot/pkg/vision/cv"
)

// 动作类型
const (
	ActionClick       = "click"
	ActionWait        = "wait"
	ActionSendKeys    = "send_keys"
	ActionSearch      = "searchTemplate"
	ActionVerifyState = "verify_state"
	ActionCheckStates = "check_multiple_states"
	ActionScanBoxes   = "scan_empty_boxes"
)

// 动作默认值
const (
	DefaultAttempts      = 1
	DefaultCheckAttempts = 5
	DefaultThreshold     = 0.8
	DefaultWaitTime      = 0.5
)

// Action 状态脚本中的单个动作
//
// params 的结构随 type 变化，配置加载时统一校验，
// 类型化的取参方法只在校验通过后使用。
type Action struct {
	Type        string        `json:"type"`
	Params      []interface{} `json:"params"`
	Description string        `json:"description"`
	Attempts    int           `json:"attempts,omitempty"`
	Threshold   float64       `json:"threshold,omitempty"`
	WaitTime    float64       `json:"wait_time,omitempty"`
	UseMask     bool          `json:"useMask,omitempty"`
	// AbortOnFail 为 true 时动作失败会终止整轮执行，默认失败后继续
	AbortOnFail bool `json:"abort_on_fail,omitempty"`
	// VerifyState 点击后校验的目标状态，仅 searchTemplate 使用。
	// 配置后点击未进入该状态会尝试环形偏移补点
	VerifyState string `json:"verify_state,omitempty"`
}

// normalize 填充默认值
func (a *Action) normalize() {
	if a.Attempts <= 0 {
		if a.Type == ActionCheckStates {
			a.Attempts = DefaultCheckAttempts
		} else {
			a.Attempts = DefaultAttempts
		}
	}
	if a.Threshold <= 0 {
		a.Threshold = DefaultThreshold
	}
	if a.WaitTime <= 0 {
		a.WaitTime = DefaultWaitTime
	}
}

// validate 按动作类型校验参数结构
func (a *Action) validate() error {
	switch a.Type {
	case ActionClick:
		if _, _, err := a.clickParams(); err != nil {
			return err
		}
	case ActionWait:
		if _, err := a.waitParams(); err != nil {
			return err
		}
	case ActionSendKeys:
		if _, err := a.textParam(); err != nil {
			return err
		}
	case ActionSearch:
		if _, _, err := a.searchParams(); err != nil {
			return err
		}
	case ActionVerifyState:
		if _, _, err := a.verifyParams(); err != nil {
			return err
		}
	case ActionCheckStates:
		states, err := a.stateListParams()
		if err != nil {
			return err
		}
		if len(states) == 0 {
			return fmt.Errorf("check_multiple_states 需要至少一个状态")
		}
	case ActionScanBoxes:
		if _, _, err := a.scanParams(); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("动作缺少 type 字段")
	default:
		return fmt.Errorf("未知动作类型: %s", a.Type)
	}
	return nil
}

// clickParams 解析 click 参数 [x, y]
func (a *Action) clickParams() (x, y int, err error) {
	if len(a.Params) < 2 {
		return 0, 0, fmt.Errorf("click 需要 [x, y] 两个参数")
	}
	x, err = asInt(a.Params[0])
	if err != nil {
		return 0, 0, fmt.Errorf("click 参数 x 无效: %w", err)
	}
	y, err = asInt(a.Params[1])
	if err != nil {
		return 0, 0, fmt.Errorf("click 参数 y 无效: %w", err)
	}
	return x, y, nil
}

// waitParams 解析 wait 参数 [seconds]
func (a *Action) waitParams() (float64, error) {
	if len(a.Params) < 1 {
		return 0, fmt.Errorf("wait 需要 [seconds] 参数")
	}
	seconds, err := asFloat(a.Params[0])
	if err != nil {
		return 0, fmt.Errorf("wait 参数无效: %w", err)
	}
	return seconds, nil
}

// textParam 解析 send_keys 参数 [text]
func (a *Action) textParam() (string, error) {
	if len(a.Params) < 1 {
		return "", fmt.Errorf("send_keys 需要 [text] 参数")
	}
	text, ok := a.Params[0].(string)
	if !ok {
		return "", fmt.Errorf("send_keys 参数应为字符串，实际 %T", a.Params[0])
	}
	return text, nil
}

// searchParams 解析 searchTemplate 参数 [template, roi]
func (a *Action) searchParams() (string, cv.ROI, error) {
	if len(a.Params) < 2 {
		return "", cv.ROI{}, fmt.Errorf("searchTemplate 需要 [template, roi] 参数")
	}
	template, ok := a.Params[0].(string)
	if !ok {
		return "", cv.ROI{}, fmt.Errorf("searchTemplate 模板路径应为字符串，实际 %T", a.Params[0])
	}
	roi, err := asROI(a.Params[1])
	if err != nil {
		return "", cv.ROI{}, fmt.Errorf("searchTemplate ROI 无效: %w", err)
	}
	return template, roi, nil
}

// verifyParams 解析 verify_state 参数 [expected, attempts]
func (a *Action) verifyParams() (string, int, error) {
	if len(a.Params) < 2 {
		return "", 0, fmt.Errorf("verify_state 需要 [state, attempts] 参数")
	}
	expected, ok := a.Params[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("verify_state 状态应为字符串，实际 %T", a.Params[0])
	}
	attempts, err := asInt(a.Params[1])
	if err != nil || attempts <= 0 {
		return "", 0, fmt.Errorf("verify_state 尝试次数无效: %v", a.Params[1])
	}
	return expected, attempts, nil
}

// stateListParams 解析 check_multiple_states 参数（状态 ID 列表）
func (a *Action) stateListParams() ([]string, error) {
	states := make([]string, 0, len(a.Params))
	for i, p := range a.Params {
		s, ok := p.(string)
		if !ok {
			return nil, fmt.Errorf("check_multiple_states 第 %d 个参数应为字符串，实际 %T", i+1, p)
		}
		states = append(states, s)
	}
	return states, nil
}

// scanParams 解析 scan_empty_boxes 参数 [template, threshold?]
func (a *Action) scanParams() (string, float64, error) {
	if len(a.Params) < 1 {
		return "", 0, fmt.Errorf("scan_empty_boxes 需要 [template] 参数")
	}
	template, ok := a.Params[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("scan_empty_boxes 模板路径应为字符串，实际 %T", a.Params[0])
	}
	threshold := 0.85
	if len(a.Params) >= 2 {
		v, err := asFloat(a.Params[1])
		if err != nil {
			return "", 0, fmt.Errorf("scan_empty_boxes 阈值无效: %w", err)
		}
		threshold = v
	}
	return template, threshold, nil
}

// asInt JSON 数字统一解码为 float64，这里收敛为 int
func asInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("期望数字，实际 %T", v)
	}
}

func asFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("期望数字，实际 %T", v)
	}
}

// asROI 解析 [x, y, w, h] 数组
func asROI(v interface{}) (cv.ROI, error) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) != 4 {
		return cv.ROI{}, fmt.Errorf("期望 [x, y, w, h] 数组，实际 %v", v)
	}
	var roi cv.ROI
	for i, e := range arr {
		n, err := asInt(e)
		if err != nil {
			return cv.ROI{}, err
		}
		roi[i] = n
	}
	return roi, nil
}
