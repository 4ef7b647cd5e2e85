// Package cv 提供游戏画面的模板匹配功能
//
// 支持两种匹配方式:
//   - 灰度模板匹配 (TM_CCOEFF_NORMED)，对亮度变化不敏感，
//     可选 RGB 三通道校验区分颜色不同但灰度相近的画面
//   - 掩码彩色匹配 (TM_CCORR_NORMED + mask)，用于背景多变的图标
//
// 基本用法:
//
//	// 在屏幕截图中查找模板
//	tmpl := cv.NewTemplate("template.png")
//	defer tmpl.Close()
//	pos, err := tmpl.MatchIn(screen)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("找到位置: (%d, %d)\n", pos.X, pos.Y)
//
//	// 限定搜索区域并使用掩码
//	tmpl := cv.NewTemplate("icon.png",
//	    cv.WithTemplateThreshold(0.9),
//	    cv.WithTemplateMask("icon_mask.png"),
//	)
//	result, err := tmpl.MatchInROI(screen, cv.ROI{100, 50, 200, 120})
package cv
