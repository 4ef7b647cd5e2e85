package cv

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

// makeFrame 生成带纹理的测试帧，保证相关系数匹配有区分度
func makeFrame(w, h int) gocv.Mat {
	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mat.SetUCharAt(y, x*3+0, uint8((x*7+y*13)%251))
			mat.SetUCharAt(y, x*3+1, uint8((x*3+y*17)%239))
			mat.SetUCharAt(y, x*3+2, uint8((x*11+y*5)%227))
		}
	}
	return mat
}

func TestTemplateMatchingExactCrop(t *testing.T) {
	frame := makeFrame(320, 240)
	defer frame.Close()

	// 从帧中裁出模板，应在原位置以接近 1.0 的置信度命中
	tmpl := CropImage(frame, [4]int{100, 60, 140, 90})
	defer tmpl.Close()

	matcher := NewTemplateMatching(tmpl, frame, 0.9, false)
	result, err := matcher.FindBestResult()
	if err != nil {
		t.Fatalf("模板匹配失败: %v", err)
	}
	if result == nil {
		t.Fatal("未找到匹配，期望在裁剪位置命中")
	}

	if result.Confidence < 0.99 {
		t.Errorf("置信度 %.4f 低于期望 0.99", result.Confidence)
	}
	// 中心点 = 左上角 + 模板一半尺寸
	if result.Result.X != 120 || result.Result.Y != 75 {
		t.Errorf("中心点 = (%d, %d)，期望 (120, 75)", result.Result.X, result.Result.Y)
	}
	if result.Rectangle.TopLeft.X != 100 || result.Rectangle.TopLeft.Y != 60 {
		t.Errorf("左上角 = (%d, %d)，期望 (100, 60)",
			result.Rectangle.TopLeft.X, result.Rectangle.TopLeft.Y)
	}
}

func TestTemplateMatchingRGBVerify(t *testing.T) {
	frame := makeFrame(320, 240)
	defer frame.Close()

	crop := CropImage(frame, [4]int{100, 60, 140, 90})
	defer crop.Close()

	// PNG 无损，落盘后应原样命中
	path := filepath.Join(t.TempDir(), "tmpl.png")
	if err := WriteImage(path, crop); err != nil {
		t.Fatalf("保存模板失败: %v", err)
	}

	tmpl := NewTemplate(path, WithTemplateThreshold(0.9), WithTemplateRGB(true))
	defer tmpl.Close()

	result, err := tmpl.MatchResultIn(frame)
	if err != nil {
		t.Fatalf("模板匹配失败: %v", err)
	}
	if result == nil {
		t.Fatal("未找到匹配，期望在裁剪位置命中")
	}
	if result.Confidence < 0.99 {
		t.Errorf("三通道置信度 %.4f 低于期望 0.99", result.Confidence)
	}
	if result.Result.X != 120 || result.Result.Y != 75 {
		t.Errorf("中心点 = (%d, %d)，期望 (120, 75)", result.Result.X, result.Result.Y)
	}
}

func TestCalRGBConfidence(t *testing.T) {
	img := makeFrame(60, 40)
	defer img.Close()

	if conf := CalRGBConfidence(img, img); conf < 0.99 {
		t.Errorf("相同图像置信度 %.4f 低于期望 0.99", conf)
	}

	// 三个通道纹理各不相同，调换通道后最弱通道应明显掉分
	channels := gocv.Split(img)
	swapped := gocv.NewMat()
	gocv.Merge([]gocv.Mat{channels[2], channels[0], channels[1]}, &swapped)
	for _, ch := range channels {
		ch.Close()
	}
	defer swapped.Close()

	if conf := CalRGBConfidence(img, swapped); conf > 0.9 {
		t.Errorf("通道调换后置信度 %.4f 仍过高", conf)
	}

	other := makeFrame(30, 40)
	defer other.Close()
	if conf := CalRGBConfidence(img, other); conf != 0 {
		t.Errorf("尺寸不一致应返回 0，实际 %.4f", conf)
	}
}

func TestTemplateMatchingSourceSmallerThanSearch(t *testing.T) {
	frame := makeFrame(50, 50)
	defer frame.Close()
	tmpl := makeFrame(100, 100)
	defer tmpl.Close()

	matcher := NewTemplateMatching(tmpl, frame, 0.8, false)
	result, err := matcher.FindBestResult()
	if err != nil {
		t.Fatalf("源图像过小不应报错: %v", err)
	}
	if result != nil {
		t.Error("源图像小于模板时应视为无匹配")
	}
}

func TestMaskedMatchingExactCrop(t *testing.T) {
	frame := makeFrame(320, 240)
	defer frame.Close()

	tmpl := CropImage(frame, [4]int{40, 30, 100, 80})
	defer tmpl.Close()

	// 全白掩码等价于无掩码
	mask := gocv.NewMatWithSize(tmpl.Rows(), tmpl.Cols(), gocv.MatTypeCV8UC1)
	defer mask.Close()
	mask.SetTo(gocv.NewScalar(255, 0, 0, 0))

	matcher := NewMaskedMatching(tmpl, frame, mask, 0.95)
	result, err := matcher.FindBestResult()
	if err != nil {
		t.Fatalf("掩码匹配失败: %v", err)
	}
	if result == nil {
		t.Fatal("未找到匹配，期望在裁剪位置命中")
	}
	if result.Rectangle.TopLeft.X != 40 || result.Rectangle.TopLeft.Y != 30 {
		t.Errorf("左上角 = (%d, %d)，期望 (40, 30)",
			result.Rectangle.TopLeft.X, result.Rectangle.TopLeft.Y)
	}
}

func TestMaskedMatchingDimensionMismatch(t *testing.T) {
	frame := makeFrame(320, 240)
	defer frame.Close()
	tmpl := CropImage(frame, [4]int{0, 0, 60, 50})
	defer tmpl.Close()

	// 掩码与模板尺寸不一致，属于配置错误
	mask := gocv.NewMatWithSize(30, 30, gocv.MatTypeCV8UC1)
	defer mask.Close()

	matcher := NewMaskedMatching(tmpl, frame, mask, 0.9)
	result, err := matcher.FindBestResult()
	if err == nil {
		t.Fatal("掩码尺寸不一致应返回错误")
	}
	if result != nil {
		t.Error("出错时不应返回匹配结果")
	}
}

func TestClampROI(t *testing.T) {
	frame := makeFrame(320, 240)
	defer frame.Close()

	testCases := []struct {
		name string
		roi  ROI
		want image.Rectangle
	}{
		{"正常区域", ROI{10, 20, 100, 80}, image.Rect(10, 20, 110, 100)},
		{"负起点裁到零", ROI{-30, -10, 100, 80}, image.Rect(0, 0, 70, 70)},
		{"越界裁到帧边", ROI{300, 200, 100, 100}, image.Rect(300, 200, 320, 240)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := clampROI(frame, tc.roi)
			if got != tc.want {
				t.Errorf("clampROI(%v) = %v，期望 %v", tc.roi, got, tc.want)
			}
		})
	}
}

func TestMatchInROIFallback(t *testing.T) {
	frame := makeFrame(320, 240)
	defer frame.Close()

	tmplMat := CropImage(frame, [4]int{200, 150, 80, 60})
	defer tmplMat.Close()

	tmpl := &Template{Threshold: 0.95}
	cached := tmplMat.Clone()
	tmpl.cachedMat = &cached
	defer tmpl.Close()

	// 裁剪后区域小于模板，应退回整帧并仍然命中
	result, err := tmpl.MatchInROI(frame, ROI{0, 0, 40, 30})
	if err != nil {
		t.Fatalf("匹配失败: %v", err)
	}
	if result == nil {
		t.Fatal("区域过小应退回整帧匹配")
	}
	if result.Rectangle.TopLeft.X != 200 || result.Rectangle.TopLeft.Y != 150 {
		t.Errorf("左上角 = (%d, %d)，期望 (200, 150)",
			result.Rectangle.TopLeft.X, result.Rectangle.TopLeft.Y)
	}
}

func TestMatchInROIOffset(t *testing.T) {
	frame := makeFrame(320, 240)
	defer frame.Close()

	tmplMat := CropImage(frame, [4]int{120, 90, 60, 40})
	defer tmplMat.Close()

	tmpl := &Template{Threshold: 0.95}
	cached := tmplMat.Clone()
	tmpl.cachedMat = &cached
	defer tmpl.Close()

	// 区域覆盖目标位置，结果坐标应为整帧坐标
	result, err := tmpl.MatchInROI(frame, ROI{100, 80, 120, 80})
	if err != nil {
		t.Fatalf("匹配失败: %v", err)
	}
	if result == nil {
		t.Fatal("区域内应命中")
	}
	if result.Rectangle.TopLeft.X != 120 || result.Rectangle.TopLeft.Y != 90 {
		t.Errorf("左上角 = (%d, %d)，期望整帧坐标 (120, 90)",
			result.Rectangle.TopLeft.X, result.Rectangle.TopLeft.Y)
	}
}

func TestImageUtils(t *testing.T) {
	img := makeFrame(200, 150)
	defer img.Close()

	// 测试获取分辨率
	w, h := GetResolution(img)
	if w != 200 || h != 150 {
		t.Errorf("分辨率 = %dx%d，期望 200x150", w, h)
	}

	// 测试灰度转换
	gray := ToGray(img)
	defer gray.Close()
	if gray.Channels() != 1 {
		t.Errorf("灰度图通道数 = %d，期望 1", gray.Channels())
	}

	// 测试裁剪越界保护
	cropped := CropImage(img, [4]int{-10, -10, 300, 300})
	defer cropped.Close()
	cropW, cropH := GetResolution(cropped)
	if cropW != 200 || cropH != 150 {
		t.Errorf("裁剪后分辨率 = %dx%d，期望 200x150", cropW, cropH)
	}

	// 测试缩放
	resized := ResizeImage(img, 100, 75)
	defer resized.Close()
	resizedW, resizedH := GetResolution(resized)
	if resizedW != 100 || resizedH != 75 {
		t.Errorf("缩放后分辨率 = %dx%d，期望 100x75", resizedW, resizedH)
	}
}

func TestMaskPath(t *testing.T) {
	if got := MaskPath("dataset/states/loja.png"); got != "dataset/states/lojamask.png" {
		t.Errorf("掩码路径 = %q", got)
	}
	if got := MaskPath("botao.jpg"); got != "botaomask.jpg" {
		t.Errorf("掩码路径 = %q", got)
	}
}

func TestSaveAnnotated(t *testing.T) {
	frame := makeFrame(320, 240)
	defer frame.Close()

	result := &MatchResult{
		Result: Point{X: 120, Y: 75},
		Rectangle: Rectangle{
			TopLeft:     Point{X: 100, Y: 60},
			BottomLeft:  Point{X: 100, Y: 90},
			BottomRight: Point{X: 140, Y: 90},
			TopRight:    Point{X: 140, Y: 60},
		},
		Confidence: 0.97,
	}

	img, err := AnnotateMatch(frame, result, "loja")
	if err != nil {
		t.Fatalf("标注失败: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 320 || bounds.Dy() != 240 {
		t.Errorf("标注图尺寸 = %dx%d，期望 320x240", bounds.Dx(), bounds.Dy())
	}

	path := filepath.Join(t.TempDir(), "debug", "loja.png")
	if err := SaveAnnotated(path, frame, result, "loja"); err != nil {
		t.Fatalf("保存标注图失败: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("标注图未落盘: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("标注图不是合法 PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 320 || decoded.Bounds().Dy() != 240 {
		t.Errorf("落盘尺寸 = %dx%d", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}
