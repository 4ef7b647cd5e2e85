package ocr

import (
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		text string
		want int64
	}{
		{"1.234.567", 1234567},
		{"12,345", 12345},
		{"金币 9876", 9876},
		{"0", 0},
		{" 1 000 ", 1000},
	}

	for _, tc := range cases {
		got, err := ParseAmount(tc.text)
		if err != nil {
			t.Errorf("ParseAmount(%q) 出错: %v", tc.text, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAmount(%q) = %d，期望 %d", tc.text, got, tc.want)
		}
	}
}

func TestParseAmountNoDigits(t *testing.T) {
	if _, err := ParseAmount("sem moedas"); err == nil {
		t.Error("无数字文本应报错")
	}
	if _, err := ParseAmount(""); err == nil {
		t.Error("空文本应报错")
	}
}

func TestDefaultConfigPaths(t *testing.T) {
	config := DefaultConfig()
	if config.OnnxRuntimeLibPath == "" || config.DetModelPath == "" {
		t.Error("默认配置不应有空路径")
	}
	if config.Language != "ch" {
		t.Errorf("默认语言 = %q", config.Language)
	}
}

func TestRecognizeUnavailableWithoutModels(t *testing.T) {
	if IsAvailable() {
		t.Skip("本机存在 OCR 模型，跳过缺失场景")
	}
	ClearCache()
	if _, err := GetGlobalRecognizer(); err == nil {
		t.Error("模型缺失时初始化应失败")
	}
}
