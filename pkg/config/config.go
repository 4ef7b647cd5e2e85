// Package config 管理 ~/.farmbot/config.json 应用配置
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AppConfig 应用配置
type AppConfig struct {
	// ADB 连接
	ADBPath   string `json:"adb_path"`
	ADBSerial string `json:"adb_serial"`
	// 截图采集: adb 截图或直接抓取模拟器窗口所在的屏幕区域
	CaptureMethod string  `json:"capture_method"`
	CaptureRegion [4]int  `json:"capture_region"`
	CaptureFPS    float64 `json:"capture_fps"`
	QueueSize     int     `json:"queue_size"`
	// 模板与脚本资源
	DatasetRoot string `json:"dataset_root"`
	StatesFile  string `json:"states_file"`
	KitFile     string `json:"kit_file"`
	ItemsFile   string `json:"items_file"`
	// 填写好友编号时替换占位符
	CustomerID string `json:"customer_id"`
	// 状态检查间隔 (毫秒)
	CheckIntervalMs int `json:"check_interval_ms"`
	// adb shell 命令超时 (秒)
	ShellTimeoutSec int `json:"shell_timeout_sec"`
	// 日志
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
	// 调试标注帧的落盘目录，空则不落盘
	DebugDir string `json:"debug_dir"`
}

// DefaultAppConfig 默认应用配置
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		ADBPath:         "adb",
		ADBSerial:       "",
		CaptureMethod:   "adb",
		CaptureRegion:   [4]int{},
		CaptureFPS:      2.0,
		QueueSize:       3,
		DatasetRoot:     "dataset",
		StatesFile:      "configs/states.json",
		KitFile:         "configs/kits.json",
		ItemsFile:       "configs/items.json",
		CustomerID:      "",
		CheckIntervalMs: 500,
		ShellTimeoutSec: 10,
		LogLevel:        "info",
		LogFile:         "",
		DebugDir:        "",
	}
}

// Manager 配置管理器
type Manager struct {
	configDir  string
	configFile string
	mu         sync.RWMutex
}

// NewManager 创建配置管理器
func NewManager() *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	configDir := filepath.Join(homeDir, ".farmbot")
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "config.json"),
	}
}

// NewManagerWithDir 使用指定目录创建配置管理器
func NewManagerWithDir(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "config.json"),
	}
}

// ensureDir 确保配置目录存在
func (m *Manager) ensureDir() error {
	return os.MkdirAll(m.configDir, 0755)
}

// Load 加载配置, 文件不存在时返回默认配置
func (m *Manager) Load() (*AppConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return DefaultAppConfig(), nil
	}

	data, err := os.ReadFile(m.configFile)
	if err != nil {
		return DefaultAppConfig(), fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 文件中缺失的字段保持默认值
	config := DefaultAppConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return DefaultAppConfig(), fmt.Errorf("解析配置文件失败: %w", err)
	}

	return config, nil
}

// Save 保存配置
func (m *Manager) Save(config *AppConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureDir(); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(m.configFile, data, 0600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// Clear 清除配置
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return nil
	}

	return os.Remove(m.configFile)
}

// GetConfigDir 获取配置目录
func (m *Manager) GetConfigDir() string {
	return m.configDir
}

// GetConfigFile 获取配置文件路径
func (m *Manager) GetConfigFile() string {
	return m.configFile
}

// Exists 检查配置文件是否存在
func (m *Manager) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.configFile)
	return err == nil
}

// 全局配置管理器
var defaultManager = NewManager()

// GetDefaultManager 获取默认配置管理器
func GetDefaultManager() *Manager {
	return defaultManager
}

// Load 使用默认管理器加载配置
func Load() (*AppConfig, error) {
	return defaultManager.Load()
}

// Save 使用默认管理器保存配置
func Save(config *AppConfig) error {
	return defaultManager.Save(config)
}

// Clear 使用默认管理器清除配置
func Clear() error {
	return defaultManager.Clear()
}
