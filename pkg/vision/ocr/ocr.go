package ocr

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"strings"

	"github.com/zoeyai/farmbot/internal/logger"
)

// RecognizeText 识别图像中的所有文字
// 支持文件路径或 image.Image
func RecognizeText(input interface{}) ([]OcrResult, error) {
	img, err := loadImage(input)
	if err != nil {
		return nil, err
	}

	recognizer, err := GetGlobalRecognizer()
	if err != nil {
		return nil, err
	}
	return recognizer.Recognize(img)
}

// FindTextPosition 查找特定文字的位置
func FindTextPosition(input interface{}, targetText string) (*Point, error) {
	if targetText == "" {
		return nil, nil
	}

	img, err := loadImage(input)
	if err != nil {
		return nil, err
	}

	recognizer, err := GetGlobalRecognizer()
	if err != nil {
		return nil, err
	}
	return recognizer.FindText(img, targetText)
}

// GetAllText 获取图像中的所有文字
func GetAllText(input interface{}) (string, error) {
	img, err := loadImage(input)
	if err != nil {
		return "", err
	}

	recognizer, err := GetGlobalRecognizer()
	if err != nil {
		return "", err
	}
	return recognizer.GetAllText(img)
}

// ParseAmount 从识别文本中提取金额数字
//
// 游戏内金额带千分位（"1.234.567" 或 "12,345"），忽略一切非数字字符。
func ParseAmount(text string) (int64, error) {
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, fmt.Errorf("文本 %q 中没有数字", text)
	}

	amount, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("解析金额 %q 失败: %w", digits.String(), err)
	}
	return amount, nil
}

// loadImage 加载图像
func loadImage(input interface{}) (image.Image, error) {
	switch v := input.(type) {
	case string:
		return loadImageFromFile(v)
	case image.Image:
		return v, nil
	default:
		return nil, fmt.Errorf("不支持的图像输入类型: %T", input)
	}
}

func loadImageFromFile(filename string) (image.Image, error) {
	file, err := os.Open(filename)
	if err != nil {
		logger.Error("打开图像文件失败: %s, %v", filename, err)
		return nil, fmt.Errorf("打开图像文件失败: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		logger.Error("解码图像失败: %s, %v", filename, err)
		return nil, fmt.Errorf("解码图像失败: %w", err)
	}
	return img, nil
}
