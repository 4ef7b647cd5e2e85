// Package adb 封装对 Android 设备的 adb 控制
package adb

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/zoeyai/farmbot/internal/logger"
	"github.com/zoeyai/farmbot/pkg/cmdutil"
)

// DefaultShellTimeout 默认 shell 命令超时
const DefaultShellTimeout = 10 * time.Second

// Controller adb 设备控制器
// 所有操作通过 adb 子进程完成，串行执行
type Controller struct {
	mu      sync.Mutex
	path    string
	serial  string
	timeout time.Duration
	log     *logger.Logger
}

// ControllerOption 控制器选项
type ControllerOption func(*Controller)

// WithShellTimeout 设置 shell 命令超时
func WithShellTimeout(timeout time.Duration) ControllerOption {
	return func(c *Controller) {
		c.timeout = timeout
	}
}

// WithLogger 设置日志器
func WithLogger(log *logger.Logger) ControllerOption {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController 创建 adb 控制器
// path 为 adb 可执行文件路径，serial 为设备序列号（如 127.0.0.1:5555 或 emulator-5554）
func NewController(path, serial string, opts ...ControllerOption) *Controller {
	c := &Controller{
		path:    path,
		serial:  serial,
		timeout: DefaultShellTimeout,
		log:     logger.WithPrefix("ADB"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Serial 返回设备序列号
func (c *Controller) Serial() string {
	return c.serial
}

// Connect 连接 tcp 设备，usb 设备无需调用
func (c *Controller) Connect() error {
	if !strings.Contains(c.serial, ":") {
		return nil
	}

	output, err := c.run("connect", c.serial)
	if err != nil {
		return fmt.Errorf("连接设备 %s 失败: %w", c.serial, err)
	}
	if !strings.Contains(output, "connected") {
		return fmt.Errorf("连接设备 %s 返回异常: %s", c.serial, output)
	}

	c.log.Info("已连接设备 %s", c.serial)
	return nil
}

// Disconnect 断开 tcp 设备连接
func (c *Controller) Disconnect() error {
	if !strings.Contains(c.serial, ":") {
		return nil
	}
	_, err := c.run("disconnect", c.serial)
	return err
}

// Shell 在设备上执行 shell 命令，返回去除首尾空白的输出
func (c *Controller) Shell(command string) (string, error) {
	args := append([]string{"-s", c.serial, "shell"}, strings.Fields(command)...)
	return c.run(args...)
}

// run 执行 adb 子命令，带超时
func (c *Controller) run(args ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.path, args...)
	cmdutil.HideWindow(cmd)
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("adb 命令超时 (%v): adb %s", c.timeout, strings.Join(args, " "))
	}
	if err != nil {
		return "", fmt.Errorf("adb 命令失败: %w, 输出: %s", err, output)
	}
	return strings.TrimSpace(string(output)), nil
}

// runRaw 执行 adb 子命令，返回原始字节输出（用于 exec-out）
func (c *Controller) runRaw(args ...string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.path, args...)
	cmdutil.HideWindow(cmd)
	output, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("adb 命令超时 (%v): adb %s", c.timeout, strings.Join(args, " "))
	}
	if err != nil {
		return nil, fmt.Errorf("adb 命令失败: %w", err)
	}
	return output, nil
}

// ListDevices 列出已连接设备的序列号（仅 state 为 device 的）
func ListDevices(adbPath string) ([]string, error) {
	cmd := exec.Command(adbPath, "devices")
	cmdutil.HideWindow(cmd)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("列出设备失败: %w, 输出: %s", err, output)
	}

	return parseDevices(string(output)), nil
}

// parseDevices 解析 adb devices 输出
func parseDevices(output string) []string {
	var serials []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials
}

// PickDevice 选择设备序列号
// preferred 非空且在列表中时优先使用，否则取第一个在线设备
func PickDevice(adbPath, preferred string) (string, error) {
	serials, err := ListDevices(adbPath)
	if err != nil {
		return "", err
	}
	if len(serials) == 0 {
		return "", fmt.Errorf("没有在线的 adb 设备")
	}

	if preferred != "" {
		for _, s := range serials {
			if s == preferred {
				return s, nil
			}
		}
		logger.Warn("配置的设备 %s 不在线，改用 %s", preferred, serials[0])
	}
	return serials[0], nil
}

// FindADB 查找 adb 可执行文件
func FindADB(preferred string) (string, error) {
	if preferred != "" {
		return preferred, nil
	}
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("未找到 adb，请在配置中指定路径")
}
