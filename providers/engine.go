package providers

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/sukafon/astrbot-plugin-big-banana/observability"
	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// 可重试状态码
var retryStatusCodes = map[types.HTTPStatus]struct{}{
	408: {}, 500: {}, 502: {}, 503: {}, 504: {},
}

// 不可重试状态码
var noRetryStatusCodes = map[types.HTTPStatus]struct{}{
	401: {}, 402: {}, 403: {}, 422: {}, 429: {},
}

// ShouldRetry 报告状态信号是否属于可重试集合。
// 未知信号（nil 或 Vertex 内部码）一律视为不可重试，
// Vertex 的重试判定由其自己的循环完成。
func ShouldRetry(sig types.StatusSignal) bool {
	s, ok := sig.(types.HTTPStatus)
	if !ok {
		return false
	}
	_, ok = retryStatusCodes[s]
	return ok
}

// IsNoRetryStatus 报告 HTTP 状态码是否在明确的不可重试集合中。
func IsNoRetryStatus(s types.HTTPStatus) bool {
	_, ok := noRetryStatusCodes[s]
	return ok
}

// engineState 轮换重试状态机的状态。
type engineState int

const (
	stateTryKey engineState = iota
	stateExhaustedKey
	stateExhaustedAllKeys
)

// Engine 按 Key 轮换的重试引擎：外层按随机起点轮换 Key，
// 每个 Key 至多尝试 len(Keys) 轮中的一轮，内层按 max_retry
// 限次重试。单次调度内严格顺序执行，不跨 Key 并发，
// 保证日志与计费的可审计性。引擎本身不持有跨请求状态。
type Engine struct {
	adapter Adapter
	logger  *zap.Logger
}

// NewEngine 创建包装指定适配器的重试引擎。
func NewEngine(adapter Adapter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{adapter: adapter, logger: logger}
}

// GenerateImages 实现 Generator。
// 首个非空图片结果立即返回；全部 Key 用尽时返回最后一次
// 观察到的错误，或兜底的"所有 Key 均已用尽"消息。
func (e *Engine) GenerateImages(ctx context.Context, cfg *types.ProviderConfig, params *types.ResolvedParams, images []types.ImagePayload) ([]types.ImagePayload, *types.Error) {
	keyCount := len(cfg.Keys)
	if keyCount == 0 {
		return nil, types.NewError(types.ErrNoAPIKey, "图片生成失败：未配置 API Key").WithProvider(cfg.APIName)
	}

	// 随机起始偏移，把负载摊到不同 Key 上
	idx := rand.Intn(keyCount)

	var (
		lastErr   *types.Error
		keysTried int
		attempt   int
	)
	state := stateTryKey
	idx = nextKeyIndex(idx, keyCount)

	for {
		switch state {
		case stateTryKey:
			attempt++
			result, sig, err := e.call(ctx, cfg, cfg.Keys[idx], params, images)
			if len(result) > 0 {
				return result, nil
			}
			if err != nil {
				lastErr = err
			}
			if ctx.Err() != nil {
				return nil, types.NewError(types.ErrCancelled, "图片生成已取消").
					WithProvider(cfg.APIName).WithCause(ctx.Err())
			}
			// 智能重试：不可重试的状态直接放弃当前 Key 的剩余额度
			if params.SmartRetry && !ShouldRetry(sig) {
				state = stateExhaustedKey
				continue
			}
			if attempt >= params.MaxRetry {
				state = stateExhaustedKey
				continue
			}
			e.logger.Warn("图片生成失败，正在重试当前 Key",
				zap.String("provider", cfg.APIName),
				zap.Int("attempt", attempt),
				zap.Int("max_retry", params.MaxRetry))

		case stateExhaustedKey:
			keysTried++
			attempt = 0
			if keysTried >= keyCount {
				state = stateExhaustedAllKeys
				continue
			}
			e.logger.Warn("图片生成失败，切换到下一个 Key",
				zap.String("provider", cfg.APIName),
				zap.Int("keys_tried", keysTried),
				zap.Int("key_count", keyCount))
			observability.ObserveKeyRotation(cfg.APIName)
			idx = nextKeyIndex(idx, keyCount)
			state = stateTryKey

		case stateExhaustedAllKeys:
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, types.NewError(types.ErrKeysExhausted, "图片生成失败：所有 Key 均已用尽或不可用").
				WithProvider(cfg.APIName)
		}
	}
}

// call 按 stream 配置选择同步或流式调用并上报指标。
func (e *Engine) call(ctx context.Context, cfg *types.ProviderConfig, apiKey string, params *types.ResolvedParams, images []types.ImagePayload) ([]types.ImagePayload, types.StatusSignal, *types.Error) {
	req := &Request{
		Provider: cfg,
		APIKey:   apiKey,
		Params:   params,
		Images:   images,
	}
	start := time.Now()
	var (
		result []types.ImagePayload
		sig    types.StatusSignal
		err    *types.Error
	)
	if cfg.Stream {
		result, sig, err = e.adapter.CallStreamAPI(ctx, req)
	} else {
		result, sig, err = e.adapter.CallAPI(ctx, req)
	}
	observability.ObserveGenerateAttempt(cfg.APIName, time.Since(start), len(result) > 0)
	return result, sig, err
}

// nextKeyIndex 返回下一个 Key 索引。
func nextKeyIndex(current, keyCount int) int {
	return (current + 1) % keyCount
}
