package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// DefaultPreviewWidth 预览图默认宽度
const DefaultPreviewWidth = 480

// EncodePreview 将帧编码为 base64 JPEG data URL
// maxWidth > 0 且帧更宽时先等比缩小，降低传输体积
func EncodePreview(frame gocv.Mat, maxWidth, quality int) (string, error) {
	if frame.Empty() {
		return "", fmt.Errorf("帧为空")
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	img, err := frame.ToImage()
	if err != nil {
		return "", fmt.Errorf("帧转换失败: %w", err)
	}

	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = scaleToWidth(img, maxWidth)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("JPEG 编码失败: %w", err)
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// scaleToWidth 等比缩放到指定宽度
func scaleToWidth(img image.Image, width int) image.Image {
	b := img.Bounds()
	height := b.Dy() * width / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
