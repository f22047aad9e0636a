// Package dispatch 实现提供商调度器：解析参数、准备参考图片、
// 按顺序尝试提供商，首个成功者即为最终结果。
package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sukafon/astrbot-plugin-big-banana/config"
	"github.com/sukafon/astrbot-plugin-big-banana/download"
	"github.com/sukafon/astrbot-plugin-big-banana/imaging"
	"github.com/sukafon/astrbot-plugin-big-banana/observability"
	"github.com/sukafon/astrbot-plugin-big-banana/providers"
	"github.com/sukafon/astrbot-plugin-big-banana/providers/gemini"
	"github.com/sukafon/astrbot-plugin-big-banana/providers/openaichat"
	"github.com/sukafon/astrbot-plugin-big-banana/providers/vertexanon"
	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// Dispatcher 提供商调度器。持有多请求共享的 HTTP 传输层，
// 单次调度内严格顺序执行，多个调度之间可并发。
type Dispatcher struct {
	cfg        *config.Config
	logger     *zap.Logger
	processor  *imaging.Processor
	downloader *download.Downloader
	// generators 按 APIType 穷举装配的封闭集合，构建后只读。
	generators map[types.APIType]providers.Generator

	transport *http.Transport
	baseCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New 创建调度器。代理在这里一次性绑定到共享传输层，
// 运行期修改代理需要重建调度器。
func New(cfg *config.Config, logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Common.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Common.Proxy)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidConfig, "代理地址无效: "+cfg.Common.Proxy).WithCause(err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	client := &http.Client{Transport: transport}

	processor := imaging.NewProcessor(logger)
	downloader := download.NewDownloader(client, processor, logger)

	baseCtx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:        cfg,
		logger:     logger,
		processor:  processor,
		downloader: downloader,
		transport:  transport,
		baseCtx:    baseCtx,
		cancel:     cancel,
		generators: map[types.APIType]providers.Generator{
			types.APITypeGemini:          providers.NewEngine(gemini.New(client, logger), logger),
			types.APITypeOpenAIChat:      providers.NewEngine(openaichat.New(client, downloader, logger), logger),
			types.APITypeVertexAnonymous: vertexanon.New(client, &cfg.VertexAnonymous, logger),
		},
	}
	return d, nil
}

// Dispatch 执行一次完整的生成任务：参数解析 → 参考图片准备 →
// 提供商按序调度。返回值约定 (images, err) 恰有一个有效。
func (d *Dispatcher) Dispatch(ctx context.Context, params *types.GenerationParams) ([]types.ImagePayload, *types.Error) {
	d.wg.Add(1)
	defer d.wg.Done()

	// Close 取消 baseCtx 时联动取消本次调度
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.baseCtx, cancel)
	defer stop()

	taskID := uuid.NewString()
	logger := d.logger.With(zap.String("task_id", taskID))

	resolved := config.ResolveParams(params, &d.cfg.Prompt, &d.cfg.Common)
	if resolved.Prompt == "" {
		return nil, types.NewError(types.ErrInvalidConfig, "提示词不能为空")
	}

	var referURLs []string
	if params != nil {
		referURLs = params.ReferImageURLs
	}
	images, err := d.prepareReferences(cctx, logger, resolved, referURLs)
	if err != nil {
		return nil, err
	}

	result, err := d.dispatchProviders(cctx, logger, resolved, images)
	if err != nil {
		return nil, err
	}

	// 过滤空载荷，全空视同未返回图片
	valid := result[:0]
	for _, img := range result {
		if img.Base64Data != "" {
			valid = append(valid, img)
		}
	}
	if len(valid) == 0 {
		msg := "图片生成失败：响应中未包含图片数据"
		logger.Error(msg)
		return nil, types.NewError(types.ErrNoImageData, msg)
	}
	return valid, nil
}

// prepareReferences 组装参考图片：本地文件优先，URL 其次；
// URL 去重保序，总量封顶在 max_images；下载前后各做一次
// min_images 校验，下载失败导致数量跌破下限同样判失败。
func (d *Dispatcher) prepareReferences(ctx context.Context, logger *zap.Logger, params *types.ResolvedParams, referURLs []string) ([]types.ImagePayload, *types.Error) {
	var images []types.ImagePayload
	for _, name := range splitList(params.ReferImages) {
		if len(images) >= params.MaxImages {
			break
		}
		payload, err := d.processor.ReadFile(filepath.Join(d.cfg.ReferImagesDir, name))
		if err != nil {
			continue
		}
		images = append(images, payload)
	}

	urls := dedupe(referURLs)

	if len(images)+len(urls) < params.MinImages {
		logger.Warn("图片数量不足",
			zap.Int("min_images", params.MinImages),
			zap.Int("current", len(images)+len(urls)))
		return nil, types.NewError(types.ErrNotEnoughImages,
			formatNotEnough(params.MinImages, len(images)+len(urls)))
	}

	appendCount := params.MaxImages - len(images)
	if appendCount > 0 && len(urls) > 0 {
		if len(images)+len(urls) > params.MaxImages {
			logger.Warn("参考图片数量超过最大图片数量，将只使用前若干张",
				zap.Int("max_images", params.MaxImages))
			urls = urls[:appendCount]
		}
		fetched := d.downloader.FetchMany(ctx, urls)
		images = append(images, fetched...)

		// min_images 为 0 时允许空列表
		if len(images) == 0 && params.MinImages > 0 {
			logger.Error("全部参考图片下载失败")
			return nil, types.NewError(types.ErrDownloadFailed, "全部参考图片下载失败")
		}
	} else if appendCount <= 0 && len(urls) > 0 {
		logger.Warn("参考图片数量已达最大允许数量，跳过下载图片步骤",
			zap.Int("max_images", params.MaxImages))
	}

	// 下载失败可能使数量跌破下限，这里再校验一次
	if len(images) < params.MinImages {
		logger.Warn("参考图片下载后数量不足",
			zap.Int("min_images", params.MinImages),
			zap.Int("current", len(images)))
		return nil, types.NewError(types.ErrNotEnoughImages,
			formatNotEnough(params.MinImages, len(images)))
	}
	return images, nil
}

// dispatchProviders 按序尝试提供商，首个非空结果立即返回。
func (d *Dispatcher) dispatchProviders(ctx context.Context, logger *zap.Logger, params *types.ResolvedParams, images []types.ImagePayload) ([]types.ImagePayload, *types.Error) {
	active := d.activeProviders(params)
	if len(active) == 0 {
		msg := "当前无可用提供商，请检查插件配置。"
		logger.Error(msg)
		return nil, types.NewError(types.ErrNoProvider, msg)
	}

	var lastErr *types.Error
	for i, name := range active {
		pc := d.cfg.ProviderByName(name)
		if pc == nil {
			logger.Warn("未找到提供商配置，跳过该提供商", zap.String("provider", name))
			continue
		}
		gen, ok := d.generators[pc.APIType]
		if !ok {
			logger.Warn("提供商类型无适配器，跳过该提供商",
				zap.String("provider", name),
				zap.String("api_type", string(pc.APIType)))
			continue
		}

		result, err := gen.GenerateImages(ctx, pc, params, images)
		observability.ObserveDispatch(pc.APIName, len(result) > 0)
		if len(result) > 0 {
			logger.Info("图片生成成功", zap.String("provider", pc.APIName))
			return result, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrCancelled, "图片生成已取消").WithCause(ctx.Err())
		}
		if i < len(active)-1 {
			logger.Warn("生成图片失败，尝试使用下一个提供商...",
				zap.String("provider", pc.APIName))
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, types.NewError(types.ErrNoProvider, "当前无可用提供商，请检查插件配置。")
}

// activeProviders 返回本次调度的提供商名称序列：请求级覆盖
// 优先，否则使用配置中启用的集合。
func (d *Dispatcher) activeProviders(params *types.ResolvedParams) []string {
	if len(params.Providers) > 0 {
		return splitList(params.Providers)
	}
	return d.cfg.EnabledProviders()
}

// Close 取消所有进行中的调度，等待收尾后释放传输层连接。
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
	d.transport.CloseIdleConnections()
}

// splitList 展开可能含逗号分隔子串的名称列表，去掉空白项。
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, piece := range strings.Split(item, ",") {
			piece = strings.TrimSpace(piece)
			if piece != "" {
				out = append(out, piece)
			}
		}
	}
	return out
}

// dedupe 去重并保持首次出现的顺序。
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func formatNotEnough(min, current int) string {
	return fmt.Sprintf("图片数量不足，最少需要 %d 张图片，当前仅 %d 张", min, current)
}
