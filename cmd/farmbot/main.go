package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zoeyai/farmbot/internal/logger"
	"github.com/zoeyai/farmbot/pkg/adb"
	"github.com/zoeyai/farmbot/pkg/capture"
	"github.com/zoeyai/farmbot/pkg/config"
	"github.com/zoeyai/farmbot/pkg/kit"
	"github.com/zoeyai/farmbot/pkg/permissions"
	"github.com/zoeyai/farmbot/pkg/process"
	"github.com/zoeyai/farmbot/pkg/state"
	"github.com/zoeyai/farmbot/pkg/vision"
	"github.com/zoeyai/farmbot/pkg/vision/cv"
	"github.com/zoeyai/farmbot/pkg/vision/ocr"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 利润检查时读取金额的屏幕区域
var profitROI = cv.ROI{330, 10, 150, 40}

func main() {
	// 命令行参数
	var (
		kitName     = flag.String("kit", "", "要执行的套装名称 (例: celeiro)")
		adbPath     = flag.String("adb", "", "adb 可执行文件路径")
		serial      = flag.String("serial", "", "设备序列号 (例: 127.0.0.1:7555)")
		datasetRoot = flag.String("dataset", "", "模板图片根目录")
		statesFile  = flag.String("states", "", "状态配置文件路径")
		kitFile     = flag.String("kits", "", "套装配置文件路径")
		itemsFile   = flag.String("items", "", "物品配置文件路径")
		customerID  = flag.String("customer", "", "好友编号 (替换脚本中的占位符)")
		fps         = flag.Float64("fps", 0, "截图采集帧率")
		debugDir    = flag.String("debug-dir", "", "模板命中标注帧的落盘目录")
		checkProfit = flag.Bool("profit", false, "执行一次利润检查后退出")
		previewFile = flag.String("preview", "", "截一帧预览写入指定文件后退出 (JPEG data URL)")
		saveConfig  = flag.Bool("save", false, "保存配置到本地")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	// 显示版本
	if *showVersion {
		printVersion()
		return
	}

	// 显示帮助
	if *showHelp {
		printHelp()
		return
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("[WARN] 加载配置失败: %v\n", err)
	}

	// 命令行参数优先级高于配置文件
	if *adbPath != "" {
		cfg.ADBPath = *adbPath
	}
	if *serial != "" {
		cfg.ADBSerial = *serial
	}
	if *datasetRoot != "" {
		cfg.DatasetRoot = *datasetRoot
	}
	if *statesFile != "" {
		cfg.StatesFile = *statesFile
	}
	if *kitFile != "" {
		cfg.KitFile = *kitFile
	}
	if *itemsFile != "" {
		cfg.ItemsFile = *itemsFile
	}
	if *customerID != "" {
		cfg.CustomerID = *customerID
	}
	if *fps > 0 {
		cfg.CaptureFPS = *fps
	}
	if *debugDir != "" {
		cfg.DebugDir = *debugDir
	}

	if *kitName == "" && *previewFile == "" {
		fmt.Println("[ERROR] 缺少套装名称，请使用 -kit 参数指定")
		printHelp()
		os.Exit(1)
	}

	// 保存配置
	if *saveConfig {
		if err := config.Save(cfg); err != nil {
			fmt.Printf("[WARN] 保存配置失败: %v\n", err)
		} else {
			fmt.Printf("[INFO] 配置已保存到 %s\n", config.GetDefaultManager().GetConfigFile())
		}
	}

	// 日志设置
	log := logger.Default()
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if cfg.LogFile != "" {
		if err := log.SetFile(true, cfg.LogFile); err != nil {
			fmt.Printf("[WARN] 打开日志文件失败: %v\n", err)
		}
	}
	defer log.Close()

	// 打印启动信息
	fmt.Println("========================================")
	fmt.Printf("  FarmBot v%s\n", Version)
	fmt.Println("========================================")

	if err := run(cfg, *kitName, *checkProfit, *previewFile); err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, kitName string, checkProfit bool, previewFile string) error {
	// 未指定设备时尝试从运行中的模拟器推断 adb 地址
	serial := cfg.ADBSerial
	if serial == "" {
		if detected, err := process.DetectSerial(); err == nil && detected != "" {
			fmt.Printf("[INFO] 检测到模拟器, adb 地址: %s\n", detected)
			serial = detected
		}
	}

	adbPath, err := adb.FindADB(cfg.ADBPath)
	if err != nil {
		return fmt.Errorf("未找到 adb: %w", err)
	}

	// tcp 设备先 connect 才会出现在 adb devices 列表里
	if strings.Contains(serial, ":") {
		pre := adb.NewController(adbPath, serial)
		if err := pre.Connect(); err != nil {
			return fmt.Errorf("连接设备失败: %w", err)
		}
	}

	serial, err = adb.PickDevice(adbPath, serial)
	if err != nil {
		return fmt.Errorf("选择设备失败: %w", err)
	}
	fmt.Printf("[INFO] 设备: %s\n", serial)

	controller := adb.NewController(adbPath, serial,
		adb.WithShellTimeout(time.Duration(cfg.ShellTimeoutSec)*time.Second))
	if err := controller.Connect(); err != nil {
		return fmt.Errorf("连接设备失败: %w", err)
	}
	defer controller.Disconnect()

	// 帧来源: adb 截图，过慢时可改为抓取模拟器窗口所在的屏幕区域
	var source capture.Source = controller
	if cfg.CaptureMethod == "host" {
		if ok, instructions := permissions.EnsurePermissions(); !ok {
			fmt.Println(instructions)
			return fmt.Errorf("缺少屏幕抓取所需的系统权限")
		}
		source = capture.NewHostScreen(cfg.CaptureRegion)
		fmt.Printf("[INFO] 采集方式: 宿主机屏幕 %v\n", cfg.CaptureRegion)
	}

	// 预览模式: 截一帧验证采集链路后退出
	if previewFile != "" {
		return writePreview(source, previewFile)
	}

	// 状态目录与分类器
	catalog, err := state.LoadCatalog(cfg.StatesFile, cfg.DatasetRoot)
	if err != nil {
		return fmt.Errorf("加载状态配置失败: %w", err)
	}
	classifier := state.NewTemplateClassifier(catalog)

	// 截图采集管线: 帧来源 -> 帧队列 -> 状态监视
	queue := capture.NewFrameQueue(cfg.QueueSize)
	producer := capture.NewProducer(source, queue, capture.WithFPS(cfg.CaptureFPS))
	producer.Start()
	defer func() {
		if err := producer.Stop(3 * time.Second); err != nil {
			fmt.Printf("[WARN] %v\n", err)
		}
		queue.Close()
	}()

	monitor := state.NewMonitor(catalog, classifier,
		state.WithCheckInterval(time.Duration(cfg.CheckIntervalMs)*time.Millisecond))
	monitor.Start(queue)
	defer func() {
		if err := monitor.Stop(3 * time.Second); err != nil {
			fmt.Printf("[WARN] %v\n", err)
		}
	}()

	// 模板查找直接取实时截图，不经过帧队列
	screen := vision.NewScreen(source, cfg.DatasetRoot)
	defer screen.Close()

	kitConfig, err := kit.LoadConfig(cfg.KitFile, kitName)
	if err != nil {
		return fmt.Errorf("加载套装配置失败: %w", err)
	}

	var items *kit.ItemsConfig
	if cfg.ItemsFile != "" {
		items, err = kit.LoadItemsConfig(cfg.ItemsFile)
		if err != nil {
			return fmt.Errorf("加载物品配置失败: %w", err)
		}
	}

	opts := []kit.InterpreterOption{kit.WithCustomerID(cfg.CustomerID)}
	if cfg.DebugDir != "" {
		opts = append(opts, kit.WithDebugDir(cfg.DebugDir))
	}

	// OCR 模型可用时启用金额识别
	if ocr.IsAvailable() {
		recognizer, err := ocr.GetGlobalRecognizer()
		if err != nil {
			fmt.Printf("[WARN] 初始化 OCR 失败: %v\n", err)
		} else {
			opts = append(opts, kit.WithTextReader(recognizer))
		}
	}

	interp := kit.NewInterpreter(controller, screen, monitor, kitConfig, items, opts...)
	runner := kit.NewRunner(kitName, kitConfig, interp, monitor)

	// Ctrl+C 取消执行
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println()
		fmt.Println("[INFO] 收到退出信号，正在停止...")
		cancel()
	}()

	if checkProfit {
		return runProfitCheck(ctx, runner, interp)
	}

	fmt.Printf("[INFO] 开始执行套装: %s\n", kitName)
	stats, err := runner.Run(ctx)
	printStats(stats)
	return err
}

// writePreview 截一帧编码为 JPEG data URL 写入文件
func writePreview(source capture.Source, path string) error {
	frame, err := source.Screenshot()
	if err != nil {
		return fmt.Errorf("截图失败: %w", err)
	}
	defer frame.Close()

	url, err := capture.EncodePreview(frame, capture.DefaultPreviewWidth, 80)
	if err != nil {
		return fmt.Errorf("编码预览失败: %w", err)
	}
	if err := os.WriteFile(path, []byte(url), 0644); err != nil {
		return fmt.Errorf("写入预览失败: %w", err)
	}
	fmt.Printf("[INFO] 预览已写入 %s (%d 字节)\n", path, len(url))
	return nil
}

// runProfitCheck 执行一次当前状态的脚本后读取屏幕金额
func runProfitCheck(ctx context.Context, runner *kit.Runner, interp *kit.Interpreter) error {
	if err := runner.RunOnce(ctx); err != nil {
		return fmt.Errorf("利润检查脚本执行失败: %w", err)
	}

	amount, err := interp.ReadAmount(profitROI)
	if err != nil {
		return fmt.Errorf("读取金额失败: %w", err)
	}

	fmt.Printf("[INFO] 当前金额: %d\n", amount)
	return nil
}

// printStats 打印执行统计
func printStats(stats kit.Stats) {
	fmt.Println("----------------------------------------")
	fmt.Printf("迭代次数:   %d\n", stats.Iterations)
	fmt.Printf("执行动作:   %d (失败 %d)\n", stats.ActionsRun, stats.ActionsFailed)
	fmt.Printf("补货箱数:   %d\n", stats.BoxesFilled)
	fmt.Printf("收款箱数:   %d\n", stats.CoinsCollected)
	fmt.Printf("重启次数:   %d\n", stats.Restarts)
	fmt.Println("----------------------------------------")
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("FarmBot v%s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("FarmBot - 农场游戏自动化工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  farmbot [选项]")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  -kit string       要执行的套装名称 (例: celeiro)")
	fmt.Println("  -adb string       adb 可执行文件路径")
	fmt.Println("  -serial string    设备序列号 (例: 127.0.0.1:7555)")
	fmt.Println("  -dataset string   模板图片根目录")
	fmt.Println("  -states string    状态配置文件路径")
	fmt.Println("  -kits string      套装配置文件路径")
	fmt.Println("  -items string     物品配置文件路径")
	fmt.Println("  -customer string  好友编号")
	fmt.Println("  -fps float        截图采集帧率")
	fmt.Println("  -debug-dir string 模板命中标注帧的落盘目录")
	fmt.Println("  -profit           执行一次利润检查后退出")
	fmt.Println("  -preview string   截一帧预览写入指定文件后退出")
	fmt.Println("  -save             保存配置到本地")
	fmt.Println("  -version          显示版本信息")
	fmt.Println("  -help             显示帮助信息")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  # 执行粮仓套装")
	fmt.Println("  farmbot -kit celeiro -serial 127.0.0.1:7555")
	fmt.Println()
	fmt.Println("  # 执行并保存配置")
	fmt.Println("  farmbot -kit celeiro -serial 127.0.0.1:7555 -save")
	fmt.Println()
	fmt.Println("  # 利润检查")
	fmt.Println("  farmbot -kit celeiro -profit")
	fmt.Println()
	fmt.Printf("配置文件位置: %s\n", config.GetDefaultManager().GetConfigFile())
}
