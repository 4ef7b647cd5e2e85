package kit

import (
	"context"
	"fmt"
	"image"

	"github.com/zoeyai/farmbot/pkg/vision/cv"
	"github.com/zoeyai/farmbot/pkg/vision/ocr"
)

// TextReader 从图像读取文字，*ocr.TextRecognizer 满足
type TextReader interface {
	GetAllText(img image.Image) (string, error)
}

// WithTextReader 设置文字识别器，ReadText/ReadAmount 依赖它
func WithTextReader(reader TextReader) InterpreterOption {
	return func(in *Interpreter) { in.text = reader }
}

// ReadText 截图并识别指定区域内的文字
func (in *Interpreter) ReadText(roi cv.ROI) (string, error) {
	if in.text == nil {
		return "", fmt.Errorf("未配置文字识别器")
	}

	frame, err := in.vision.Screenshot()
	if err != nil {
		return "", fmt.Errorf("截图失败: %w", err)
	}
	defer frame.Close()

	region := frame
	if !roi.Empty() {
		cropped := cv.CropImage(frame, [4]int{roi[0], roi[1], roi[0] + roi[2], roi[1] + roi[3]})
		defer cropped.Close()
		region = cropped
	}

	img, err := cv.MatToImage(region)
	if err != nil {
		return "", err
	}
	return in.text.GetAllText(img)
}

// ReadAmount 截图并读取指定区域内的金额数字
func (in *Interpreter) ReadAmount(roi cv.ROI) (int64, error) {
	text, err := in.ReadText(roi)
	if err != nil {
		return 0, err
	}

	amount, err := ocr.ParseAmount(text)
	if err != nil {
		return 0, err
	}
	in.log.Info("识别到金额: %d", amount)
	return amount, nil
}

// RunOnce 只执行当前状态的动作脚本一轮，不做状态机流转
//
// 用于查询类流程（如读取账户金币数），当前状态没有脚本时报错。
func (r *Runner) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("单轮执行发生未预期错误: %v", rec)
			err = fmt.Errorf("单轮执行发生未预期错误: %v", rec)
		}
	}()

	current := r.states.Current()
	r.log.Info("单轮执行，当前状态: %s", current)

	script, ok := r.cfg.States[current]
	if !ok {
		return fmt.Errorf("状态 %s 没有配置脚本", current)
	}

	for _, action := range script.Actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		result := r.interp.Execute(action)
		if !result.OK {
			return fmt.Errorf("动作 %q 失败: %w", action.Description, result.Err)
		}
	}
	return nil
}
