// bananagen 命令行入口：装载配置，执行一次图片生成调度，
// 把结果写入输出目录。
//
// 使用方法:
//
//	bananagen generate --config config.yaml --prompt "一只香蕉猫"
//	bananagen generate --prompt "..." --providers gemini-main,backup
//	bananagen version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sukafon/astrbot-plugin-big-banana/config"
	"github.com/sukafon/astrbot-plugin-big-banana/dispatch"
	"github.com/sukafon/astrbot-plugin-big-banana/imaging"
	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		runGenerate(os.Args[2:])
	case "version":
		fmt.Printf("bananagen %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	prompt := fs.String("prompt", "", "提示词")
	providersFlag := fs.String("providers", "", "提供商名称列表（逗号分隔，留空使用配置默认）")
	referURLs := fs.String("refer-urls", "", "参考图片 URL 列表（逗号分隔）")
	referImages := fs.String("refer-images", "", "参考图片文件名列表（逗号分隔）")
	outDir := fs.String("out", ".", "图片输出目录")
	aspectRatio := fs.String("aspect-ratio", "", "宽高比（如 16:9，留空使用配置默认）")
	imageSize := fs.String("image-size", "", "分辨率（如 1K/2K/4K，留空使用配置默认）")
	fs.Parse(args)

	if *prompt == "" {
		fmt.Fprintln(os.Stderr, "必须通过 --prompt 指定提示词")
		os.Exit(1)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	dispatcher, derr := dispatch.New(cfg, logger)
	if derr != nil {
		logger.Fatal("调度器初始化失败", zap.Error(derr))
	}
	defer dispatcher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := &types.GenerationParams{Prompt: *prompt}
	if *providersFlag != "" {
		params.Providers = []string{*providersFlag}
	}
	if *referURLs != "" {
		params.ReferImageURLs = strings.Split(*referURLs, ",")
	}
	if *referImages != "" {
		params.ReferImages = []string{*referImages}
	}
	if *aspectRatio != "" {
		params.AspectRatio = aspectRatio
	}
	if *imageSize != "" {
		params.ImageSize = imageSize
	}

	results, gerr := dispatcher.Dispatch(ctx, params)
	if gerr != nil {
		logger.Error("图片生成失败", zap.Error(gerr))
		fmt.Fprintln(os.Stderr, gerr.Message)
		os.Exit(1)
	}

	processor := imaging.NewProcessor(logger)
	paths, serr := processor.SaveImages(results, *outDir)
	if serr != nil {
		logger.Error("图片保存失败", zap.Error(serr))
		os.Exit(1)
	}
	for _, path := range paths {
		fmt.Println(path)
	}
}

// newLogger 按配置级别构建生产配置的 zap 日志器。
func newLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("unknown log level %q: %w", level, err)
		}
		lvl = parsed
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func printUsage() {
	fmt.Println(`bananagen - 图片生成调度器

命令:
  generate   执行一次图片生成
  version    显示版本信息
  help       显示帮助

示例:
  bananagen generate --config config.yaml --prompt "一只香蕉猫"
  bananagen generate --prompt "像素风城市夜景" --aspect-ratio 16:9`)
}
