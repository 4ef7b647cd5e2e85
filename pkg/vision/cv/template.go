package cv

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// CV 包配置
var (
	// DefaultThreshold 默认匹配阈值
	DefaultThreshold = 0.8
	// CurrentPath 当前工作路径，相对模板路径基于此解析
	CurrentPath = ""
)

// Template 模板匹配类
// 模板图像与掩码按路径缓存，重复匹配不重复读盘
type Template struct {
	// Filename 模板文件路径
	Filename string
	// MaskFilename 掩码文件路径，UseMask 为 true 时必须存在
	MaskFilename string
	// Threshold 匹配阈值
	Threshold float64
	// UseMask 是否使用掩码匹配
	UseMask bool
	// RGB 无掩码匹配时是否做 RGB 三通道校验
	RGB bool

	// 缓存的模板与掩码图像
	cachedMat  *gocv.Mat
	cachedMask *gocv.Mat
}

// TemplateOption 模板选项
type TemplateOption func(*Template)

// NewTemplate 创建新的 Template
func NewTemplate(filename string, opts ...TemplateOption) *Template {
	t := &Template{
		Filename:  filename,
		Threshold: DefaultThreshold,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// WithTemplateThreshold 设置阈值
func WithTemplateThreshold(threshold float64) TemplateOption {
	return func(t *Template) {
		t.Threshold = threshold
	}
}

// WithTemplateMask 设置掩码路径并启用掩码匹配
func WithTemplateMask(maskFilename string) TemplateOption {
	return func(t *Template) {
		t.MaskFilename = maskFilename
		t.UseMask = maskFilename != ""
	}
}

// WithTemplateRGB 启用 RGB 三通道校验
func WithTemplateRGB(rgb bool) TemplateOption {
	return func(t *Template) {
		t.RGB = rgb
	}
}

// MatchIn 在整帧中匹配模板，返回中心点
func (t *Template) MatchIn(screen gocv.Mat) (*Point, error) {
	result, err := t.MatchResultIn(screen)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	pos := result.Result
	return &pos, nil
}

// MatchResultIn 在整帧中匹配模板，返回完整匹配结果
func (t *Template) MatchResultIn(screen gocv.Mat) (*MatchResult, error) {
	return t.MatchInROI(screen, ROI{})
}

// MatchInROI 在帧的指定区域内匹配模板
//
// 区域先裁剪到帧边界（负的起点按 0 处理）。裁剪后小于模板时
// 退回整帧匹配；整帧仍小于模板则视为无匹配。结果坐标始终为
// 整帧坐标系。
func (t *Template) MatchInROI(screen gocv.Mat, roi ROI) (*MatchResult, error) {
	tmpl, mask, err := t.readImage()
	if err != nil {
		return nil, err
	}
	defer tmpl.Close()
	if mask != nil {
		defer mask.Close()
	}

	region := screen
	offset := image.Point{}
	var cropped gocv.Mat

	if !roi.Empty() {
		rect := clampROI(screen, roi)
		if rect.Dx() >= tmpl.Cols() && rect.Dy() >= tmpl.Rows() {
			cropped = CropImage(screen, [4]int{rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y})
			defer cropped.Close()
			region = cropped
			offset = rect.Min
		}
		// 区域太小退回整帧
	}

	var result *MatchResult
	if t.UseMask {
		m := NewMaskedMatching(tmpl, region, *mask, t.Threshold)
		result, err = m.FindBestResult()
	} else {
		m := NewTemplateMatching(tmpl, region, t.Threshold, t.RGB)
		result, err = m.FindBestResult()
	}
	if err != nil || result == nil {
		return nil, err
	}

	return translateResult(result, offset), nil
}

// clampROI 将 [x,y,w,h] 区域裁剪到帧边界内
func clampROI(screen gocv.Mat, roi ROI) image.Rectangle {
	x, y, w, h := roi[0], roi[1], roi[2], roi[3]
	rect := image.Rect(x, y, x+w, y+h)
	return rect.Intersect(image.Rect(0, 0, screen.Cols(), screen.Rows()))
}

// translateResult 将区域内坐标平移回整帧坐标
func translateResult(r *MatchResult, offset image.Point) *MatchResult {
	if offset.X == 0 && offset.Y == 0 {
		return r
	}
	r.Result.X += offset.X
	r.Result.Y += offset.Y
	r.Rectangle.TopLeft.X += offset.X
	r.Rectangle.TopLeft.Y += offset.Y
	r.Rectangle.TopRight.X += offset.X
	r.Rectangle.TopRight.Y += offset.Y
	r.Rectangle.BottomLeft.X += offset.X
	r.Rectangle.BottomLeft.Y += offset.Y
	r.Rectangle.BottomRight.X += offset.X
	r.Rectangle.BottomRight.Y += offset.Y
	return r
}

// readImage 读取模板图像与掩码（带缓存）
func (t *Template) readImage() (gocv.Mat, *gocv.Mat, error) {
	if t.cachedMat != nil && !t.cachedMat.Empty() {
		tmpl := t.cachedMat.Clone()
		if t.UseMask && t.cachedMask != nil {
			mask := t.cachedMask.Clone()
			return tmpl, &mask, nil
		}
		return tmpl, nil, nil
	}

	mat, err := ReadImage(resolvePath(t.Filename))
	if err != nil {
		return mat, nil, err
	}
	cached := mat.Clone()
	if t.cachedMat != nil {
		t.cachedMat.Close()
	}
	t.cachedMat = &cached

	if !t.UseMask {
		return mat, nil, nil
	}

	// 掩码按单通道读入
	maskMat, err := ReadImageGray(resolvePath(t.MaskFilename))
	if err != nil {
		mat.Close()
		return gocv.Mat{}, nil, fmt.Errorf("读取掩码失败: %w", err)
	}
	cachedMask := maskMat.Clone()
	if t.cachedMask != nil {
		t.cachedMask.Close()
	}
	t.cachedMask = &cachedMask

	return mat, &maskMat, nil
}

func resolvePath(filename string) string {
	if CurrentPath != "" && !filepath.IsAbs(filename) {
		return filepath.Join(CurrentPath, filename)
	}
	return filename
}

// MaskPath 按约定推导掩码路径：foo.png -> foomask.png
func MaskPath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + "mask" + ext
}

// Close 释放资源
func (t *Template) Close() {
	if t.cachedMat != nil {
		t.cachedMat.Close()
		t.cachedMat = nil
	}
	if t.cachedMask != nil {
		t.cachedMask.Close()
		t.cachedMask = nil
	}
}

// String 返回字符串表示
func (t *Template) String() string {
	return fmt.Sprintf("Template(%s)", t.Filename)
}
