// Package ocr 提供基于 PaddleOCR 的文字识别，用于读取游戏内金额与编号
package ocr

import (
	"os"
	"path/filepath"
	"runtime"
)

// Point 表示二维坐标点
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// OcrResult OCR 识别结果
type OcrResult struct {
	// Text 识别的文字内容
	Text string `json:"text"`
	// Confidence 识别置信度 (0-1)
	Confidence float64 `json:"confidence"`
	// Position 文字中心位置
	Position Point `json:"position"`
	// Box 文字边界框四个角点
	Box []Point `json:"box,omitempty"`
}

// Config OCR 配置
type Config struct {
	// OnnxRuntimeLibPath ONNX Runtime 动态库路径
	OnnxRuntimeLibPath string
	// DetModelPath 检测模型路径
	DetModelPath string
	// RecModelPath 识别模型路径
	RecModelPath string
	// DictPath 字典文件路径
	DictPath string
	// Language 语言 (ch, en)
	Language string
	// UseGPU 是否使用 GPU
	UseGPU bool
	// CPUThreads CPU 线程数
	CPUThreads int
}

// DefaultConfig 默认配置，模型文件在可执行文件目录或工作目录的 models/ 下
func DefaultConfig() Config {
	return Config{
		OnnxRuntimeLibPath: defaultRuntimePath(),
		DetModelPath:       defaultModelPath("det.onnx"),
		RecModelPath:       defaultModelPath("rec.onnx"),
		DictPath:           defaultModelPath("dict.txt"),
		Language:           "ch",
		UseGPU:             false,
		CPUThreads:         4,
	}
}

// IsAvailable 检查 OCR 功能是否可用（模型文件是否齐全）
func IsAvailable() bool {
	config := DefaultConfig()
	return fileExists(config.OnnxRuntimeLibPath) &&
		fileExists(config.DetModelPath) &&
		fileExists(config.RecModelPath) &&
		fileExists(config.DictPath)
}

func executableDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return "."
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return "."
	}
	return filepath.Dir(execPath)
}

// defaultRuntimePath 按平台和架构挑选 ONNX Runtime 动态库
func defaultRuntimePath() string {
	execDir := executableDir()

	var names []string
	switch runtime.GOOS {
	case "darwin":
		names = []string{
			"libonnxruntime.dylib",
			"onnxruntime_" + runtime.GOARCH + ".dylib",
		}
	case "windows":
		names = []string{"onnxruntime.dll"}
	default:
		names = []string{
			"libonnxruntime.so",
			"onnxruntime_" + runtime.GOARCH + ".so",
		}
	}

	var candidates []string
	for _, name := range names {
		candidates = append(candidates,
			filepath.Join(execDir, name),
			filepath.Join(execDir, "models", "lib", name),
			filepath.Join("models", "lib", name),
		)
	}
	for _, p := range candidates {
		if fileExists(p) {
			return p
		}
	}
	return candidates[len(candidates)-1]
}

func defaultModelPath(filename string) string {
	candidates := []string{
		filepath.Join(executableDir(), "models", "paddle_weights", filename),
		filepath.Join("models", "paddle_weights", filename),
	}
	for _, p := range candidates {
		if fileExists(p) {
			return p
		}
	}
	return candidates[0]
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
