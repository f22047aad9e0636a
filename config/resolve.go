package config

import (
	"time"

	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// ResolveParams 把请求级参数按 请求级 → 预设层 → 全局默认 的
// 显式回退链解析为定值参数。preset 与 common 已在装载阶段
// 吸收了全局默认层，这里只剩请求级覆盖的判定；字符串字段
// 仍兜底到全局常量，防止空配置漏到适配器。
func ResolveParams(req *types.GenerationParams, preset *types.PromptConfig, common *types.CommonConfig) *types.ResolvedParams {
	if req == nil {
		req = &types.GenerationParams{}
	}
	r := &types.ResolvedParams{
		Prompt:       req.Prompt,
		Providers:    req.Providers,
		MinImages:    resolveInt(req.MinImages, preset.MinImages),
		MaxImages:    resolveInt(req.MaxImages, preset.MaxImages),
		AspectRatio:  resolveString(req.AspectRatio, preset.AspectRatio, DefaultAspectRatio),
		ImageSize:    resolveString(req.ImageSize, preset.ImageSize, DefaultImageSize),
		GoogleSearch: resolveBool(req.GoogleSearch, preset.GoogleSearch),
		TextResponse: resolveBool(req.TextResponse, common.TextResponse),
		SmartRetry:   resolveBool(req.SmartRetry, common.SmartRetry),
		MaxRetry:     resolveInt(req.MaxRetry, common.MaxRetry),
		Timeout:      resolveDuration(req.Timeout, common.Timeout()),
		Proxy:        resolveString(req.Proxy, common.Proxy, ""),
	}
	if len(req.ReferImages) > 0 {
		r.ReferImages = req.ReferImages
	} else {
		r.ReferImages = preset.ReferImages
	}
	if r.MaxRetry < 1 {
		r.MaxRetry = DefaultMaxRetry
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeoutSeconds * time.Second
	}
	if r.MaxImages < r.MinImages {
		r.MaxImages = r.MinImages
	}
	return r
}

func resolveString(req *string, fallback, def string) string {
	if req != nil {
		return *req
	}
	if fallback != "" {
		return fallback
	}
	return def
}

func resolveInt(req *int, fallback int) int {
	if req != nil {
		return *req
	}
	return fallback
}

func resolveBool(req *bool, fallback bool) bool {
	if req != nil {
		return *req
	}
	return fallback
}

func resolveDuration(req *time.Duration, fallback time.Duration) time.Duration {
	if req != nil {
		return *req
	}
	return fallback
}
