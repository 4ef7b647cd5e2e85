package cv

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// MaskedMatching 带掩码的彩色模板匹配器
// 使用 TM_CCORR_NORMED + 掩码，忽略模板中的透明/无关像素，
// 适合匹配形状固定但背景多变的图标。要求掩码与模板同尺寸。
type MaskedMatching struct {
	imSearch  gocv.Mat
	imSource  gocv.Mat
	mask      gocv.Mat
	threshold float64
}

// NewMaskedMatching 创建带掩码的模板匹配器
func NewMaskedMatching(search, source, mask gocv.Mat, threshold float64) *MaskedMatching {
	return &MaskedMatching{
		imSearch:  search,
		imSource:  source,
		mask:      mask,
		threshold: threshold,
	}
}

// FindBestResult 查找最佳匹配结果
// 模板与掩码尺寸不一致属于配置错误，直接返回错误，不做匹配。
// 源图像小于模板时返回 (nil, nil)。
func (m *MaskedMatching) FindBestResult() (*MatchResult, error) {
	startTime := time.Now()

	if m.mask.Rows() != m.imSearch.Rows() || m.mask.Cols() != m.imSearch.Cols() {
		return nil, fmt.Errorf("掩码尺寸 %dx%d 与模板尺寸 %dx%d 不一致",
			m.mask.Cols(), m.mask.Rows(), m.imSearch.Cols(), m.imSearch.Rows())
	}

	if !sourceLargerThanSearch(m.imSource, m.imSearch) {
		return nil, nil
	}

	result := gocv.NewMat()
	defer result.Close()
	gocv.MatchTemplate(m.imSource, m.imSearch, &result, gocv.TmCcorrNormed, m.mask)

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)

	h, w := m.imSearch.Rows(), m.imSearch.Cols()
	middlePoint, rectangle := getTargetRectangle(maxLoc, w, h)

	elapsed := float64(time.Since(startTime).Milliseconds())

	matchResult := &MatchResult{
		Result:     middlePoint,
		Rectangle:  rectangle,
		Confidence: float64(maxVal),
		Time:       elapsed,
	}

	if matchResult.Confidence >= m.threshold {
		return matchResult, nil
	}
	return nil, nil
}
