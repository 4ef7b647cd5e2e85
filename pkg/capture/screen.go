package capture

import (
	"fmt"

	"github.com/go-vgo/robotgo"
	"gocv.io/x/gocv"

	"github.com/zoeyai/farmbot/pkg/vision/cv"
)

// HostScreen 宿主机屏幕帧来源
// adb 截图过慢时的替代采集方式，直接抓取模拟器窗口所在的屏幕区域。
// Region 为全零时抓取整个屏幕。
type HostScreen struct {
	Region [4]int // [x, y, w, h]
}

// NewHostScreen 创建宿主机屏幕来源
func NewHostScreen(region [4]int) *HostScreen {
	return &HostScreen{Region: region}
}

// Screenshot 抓取屏幕，返回 BGR Mat
func (s *HostScreen) Screenshot() (gocv.Mat, error) {
	if s.Region[2] > 0 && s.Region[3] > 0 {
		img, err := robotgo.CaptureImg(s.Region[0], s.Region[1], s.Region[2], s.Region[3])
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("抓取屏幕区域失败: %w", err)
		}
		return cv.ImageToMat(img)
	}

	img, err := robotgo.CaptureImg()
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("抓取屏幕失败: %w", err)
	}
	return cv.ImageToMat(img)
}
