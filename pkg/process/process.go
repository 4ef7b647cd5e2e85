// Package process 提供进程管理与安卓模拟器发现功能
package process

import (
	"fmt"
	"strings"

	"github.com/go-vgo/robotgo"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo 进程信息
type ProcessInfo struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// EmulatorInfo 已发现的模拟器进程及其默认 adb 地址
type EmulatorInfo struct {
	Process ProcessInfo `json:"process"`
	Vendor  string      `json:"vendor"`
	Serial  string      `json:"serial"`
}

// 各家模拟器的进程名关键字与默认 adb 端口
var emulatorVendors = []struct {
	vendor  string
	keyword string
	serial  string
}{
	{"mumu", "mumuplayer", "127.0.0.1:7555"},
	{"mumu", "mumuvmmheadless", "127.0.0.1:7555"},
	{"ldplayer", "dnplayer", "emulator-5554"},
	{"bluestacks", "hd-player", "127.0.0.1:5555"},
	{"nox", "nox", "127.0.0.1:62001"},
}

// GetProcesses 获取所有进程
func GetProcesses() ([]ProcessInfo, error) {
	pids, err := process.Pids()
	if err != nil {
		return nil, fmt.Errorf("获取进程列表失败: %w", err)
	}

	var processes []ProcessInfo
	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}

		name, _ := proc.Name()
		exe, _ := proc.Exe()

		processes = append(processes, ProcessInfo{
			PID:  int(pid),
			Name: name,
			Path: exe,
		})
	}

	return processes, nil
}

// FindProcess 按名称查找进程 (不区分大小写，支持部分匹配)
func FindProcess(name string) ([]ProcessInfo, error) {
	pids, err := process.Pids()
	if err != nil {
		return nil, fmt.Errorf("获取进程列表失败: %w", err)
	}

	name = strings.ToLower(name)
	var matches []ProcessInfo

	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}

		procName, err := proc.Name()
		if err != nil {
			continue
		}

		if strings.Contains(strings.ToLower(procName), name) {
			exe, _ := proc.Exe()
			matches = append(matches, ProcessInfo{
				PID:  int(pid),
				Name: procName,
				Path: exe,
			})
		}
	}

	return matches, nil
}

// FindEmulators 发现正在运行的安卓模拟器进程
func FindEmulators() ([]EmulatorInfo, error) {
	processes, err := GetProcesses()
	if err != nil {
		return nil, err
	}
	return matchEmulators(processes), nil
}

// matchEmulators 按进程名关键字识别模拟器, 同一 PID 只记一次
func matchEmulators(processes []ProcessInfo) []EmulatorInfo {
	var emulators []EmulatorInfo
	seen := make(map[int]bool)

	for _, p := range processes {
		name := strings.ToLower(p.Name)
		for _, v := range emulatorVendors {
			if strings.Contains(name, v.keyword) && !seen[p.PID] {
				seen[p.PID] = true
				emulators = append(emulators, EmulatorInfo{
					Process: p,
					Vendor:  v.vendor,
					Serial:  v.serial,
				})
				break
			}
		}
	}

	return emulators
}

// DetectSerial 返回首个运行中模拟器的默认 adb 地址, 未发现时返回空串
func DetectSerial() (string, error) {
	emulators, err := FindEmulators()
	if err != nil {
		return "", err
	}
	if len(emulators) == 0 {
		return "", nil
	}
	return emulators[0].Serial, nil
}

// GetProcessByPID 按 PID 获取进程信息
func GetProcessByPID(pid int) (*ProcessInfo, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("进程不存在: PID=%d", pid)
	}

	name, _ := proc.Name()
	exe, _ := proc.Exe()

	return &ProcessInfo{
		PID:  pid,
		Name: name,
		Path: exe,
	}, nil
}

// IsProcessRunning 检查进程是否正在运行
func IsProcessRunning(pid int) bool {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	if err != nil {
		return false
	}
	return running
}

// KillProcess 终止进程
func KillProcess(pid int) error {
	return robotgo.Kill(pid)
}

// FindPIDsByName 按名称查找进程 PID
func FindPIDsByName(name string) ([]int, error) {
	pids, err := robotgo.FindIds(name)
	if err != nil {
		return nil, fmt.Errorf("查找进程失败: %w", err)
	}
	return pids, nil
}
