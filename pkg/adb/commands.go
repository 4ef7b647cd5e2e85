package adb

import (
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// Tap 点击指定坐标
func (c *Controller) Tap(x, y int) error {
	c.log.Debug("tap (%d, %d)", x, y)
	_, err := c.Shell(fmt.Sprintf("input tap %d %d", x, y))
	return err
}

// Swipe 滑动手势，duration 单位毫秒
func (c *Controller) Swipe(x1, y1, x2, y2, duration int) error {
	c.log.Debug("swipe (%d, %d) -> (%d, %d) %dms", x1, y1, x2, y2, duration)
	_, err := c.Shell(fmt.Sprintf("input swipe %d %d %d %d %d", x1, y1, x2, y2, duration))
	return err
}

// LongPress 长按指定坐标，duration 单位毫秒
// 用原地 swipe 实现
func (c *Controller) LongPress(x, y, duration int) error {
	return c.Swipe(x, y, x, y, duration)
}

// SendKey 发送按键事件，如 KEYCODE_BACK
func (c *Controller) SendKey(key string) error {
	_, err := c.Shell(fmt.Sprintf("input keyevent %s", key))
	return err
}

// SendText 输入文本
func (c *Controller) SendText(text string) error {
	_, err := c.Shell(fmt.Sprintf("input text %s", escapeText(text)))
	return err
}

// escapeText input text 不支持空格，转义为 %s
func escapeText(text string) string {
	return strings.ReplaceAll(text, " ", "%s")
}

// Screenshot 截取设备屏幕，返回 BGR Mat
// 通过 exec-out screencap 直接读 PNG 字节，不落临时文件
func (c *Controller) Screenshot() (gocv.Mat, error) {
	data, err := c.runRaw("-s", c.serial, "exec-out", "screencap", "-p")
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("截图失败: %w", err)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("解码截图失败: %w", err)
	}
	if mat.Empty() {
		return gocv.Mat{}, fmt.Errorf("截图数据为空")
	}
	return mat, nil
}

// WindowSize 获取设备屏幕尺寸
func (c *Controller) WindowSize() (width, height int, err error) {
	output, err := c.Shell("wm size")
	if err != nil {
		return 0, 0, err
	}
	return parseWindowSize(output)
}

// parseWindowSize 解析 wm size 输出
// 形如 "Physical size: 1080x1920"，有分辨率覆盖时附加 "Override size: ..."，
// 覆盖尺寸优先
func parseWindowSize(output string) (width, height int, err error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		var w, h int
		if _, err := fmt.Sscanf(line, "Override size: %dx%d", &w, &h); err == nil {
			return w, h, nil
		}
		if _, err := fmt.Sscanf(line, "Physical size: %dx%d", &w, &h); err == nil {
			width, height = w, h
		}
	}
	if width > 0 && height > 0 {
		return width, height, nil
	}
	return 0, 0, fmt.Errorf("解析屏幕尺寸失败: %s", output)
}

// StartApp 启动应用
func (c *Controller) StartApp(pkg, activity string) error {
	_, err := c.Shell(fmt.Sprintf("am start -n %s/%s", pkg, activity))
	return err
}

// ForceStop 强制停止应用
func (c *Controller) ForceStop(pkg string) error {
	_, err := c.Shell(fmt.Sprintf("am force-stop %s", pkg))
	return err
}
