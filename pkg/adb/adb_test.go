package adb

import (
	"testing"
)

func TestParseDevices(t *testing.T) {
	output := "List of devices attached\n" +
		"emulator-5554\tdevice\n" +
		"127.0.0.1:16416\tdevice\n" +
		"127.0.0.1:16448\toffline\n" +
		"RF8M33XXXXX\tunauthorized\n"

	serials := parseDevices(output)
	if len(serials) != 2 {
		t.Fatalf("在线设备数 = %d，期望 2", len(serials))
	}
	if serials[0] != "emulator-5554" || serials[1] != "127.0.0.1:16416" {
		t.Errorf("解析结果 = %v", serials)
	}
}

func TestParseDevicesEmpty(t *testing.T) {
	serials := parseDevices("List of devices attached\n\n")
	if len(serials) != 0 {
		t.Errorf("无设备时应返回空列表，得到 %v", serials)
	}
}

func TestParseWindowSize(t *testing.T) {
	testCases := []struct {
		name    string
		output  string
		w, h    int
		wantErr bool
	}{
		{"物理尺寸", "Physical size: 1080x1920", 1080, 1920, false},
		{"覆盖尺寸优先", "Physical size: 1080x1920\nOverride size: 720x1280", 720, 1280, false},
		{"无法解析", "something else", 0, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, h, err := parseWindowSize(tc.output)
			if tc.wantErr {
				if err == nil {
					t.Error("期望解析失败")
				}
				return
			}
			if err != nil {
				t.Fatalf("解析失败: %v", err)
			}
			if w != tc.w || h != tc.h {
				t.Errorf("尺寸 = %dx%d，期望 %dx%d", w, h, tc.w, tc.h)
			}
		})
	}
}

func TestSendTextEscaping(t *testing.T) {
	// input text 不支持空格，发送前需转义
	got := escapeText("Fazenda do Joao 123")
	want := "Fazenda%sdo%sJoao%s123"
	if got != want {
		t.Errorf("转义结果 = %q，期望 %q", got, want)
	}
}
