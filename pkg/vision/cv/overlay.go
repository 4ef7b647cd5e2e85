package cv

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"gocv.io/x/gocv"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	overlayFont     *truetype.Font
	overlayFontOnce sync.Once
)

func loadOverlayFont() *truetype.Font {
	overlayFontOnce.Do(func() {
		f, err := freetype.ParseFont(goregular.TTF)
		if err == nil {
			overlayFont = f
		}
	})
	return overlayFont
}

// AnnotateMatch 在帧上绘制匹配框和标签，返回标注后的图像
// 用于落盘调试，不参与匹配流程
func AnnotateMatch(frame gocv.Mat, result *MatchResult, label string) (image.Image, error) {
	annotated := frame.Clone()
	defer annotated.Close()

	b := result.Rectangle.Bounds()
	gocv.Rectangle(&annotated,
		image.Rect(b[0], b[1], b[2], b[3]),
		color.RGBA{0, 255, 0, 255}, 2)

	img, err := annotated.ToImage()
	if err != nil {
		return nil, fmt.Errorf("Mat 转换失败: %w", err)
	}

	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, image.Point{}, draw.Src)

	text := fmt.Sprintf("%s %.2f", label, result.Confidence)
	if err := drawLabel(rgba, text, b[0], b[1]-6); err != nil {
		return nil, err
	}
	return rgba, nil
}

// drawLabel 用 freetype 在图像上绘制文字
func drawLabel(dst *image.RGBA, text string, x, y int) error {
	f := loadOverlayFont()
	if f == nil {
		return fmt.Errorf("加载标注字体失败")
	}

	const fontSize = 16
	if y < fontSize {
		y = fontSize
	}

	ctx := freetype.NewContext()
	ctx.SetFont(f)
	ctx.SetFontSize(fontSize)
	ctx.SetClip(dst.Bounds())
	ctx.SetDst(dst)
	ctx.SetSrc(image.NewUniform(color.RGBA{0, 255, 0, 255}))

	_, err := ctx.DrawString(text, freetype.Pt(x, y))
	if err != nil {
		return fmt.Errorf("绘制标签失败: %w", err)
	}
	return nil
}

// SaveAnnotated 将标注后的匹配结果保存为 PNG
func SaveAnnotated(filename string, frame gocv.Mat, result *MatchResult, label string) error {
	img, err := AnnotateMatch(frame, result, label)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("保存标注图像失败: %w", err)
	}
	return nil
}
