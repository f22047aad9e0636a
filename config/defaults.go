package config

import "github.com/sukafon/astrbot-plugin-big-banana/types"

// 各提供商类型的默认 API 地址。
const (
	DefaultOpenAIAPIURL          = "https://api.openai.com/v1/chat/completions"
	DefaultGeminiAPIURL          = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultVertexAnonymousAPIURL = "https://cloudconsole-pa.clients6.google.com"
	DefaultRecaptchaBaseAPI      = "https://www.google.com"
)

// 生成参数的全局默认层。
const (
	DefaultMinImages      = 1
	DefaultMaxImages      = 6
	DefaultAspectRatio    = "default"
	DefaultImageSize      = "1K"
	DefaultMaxRetry       = 3
	DefaultTimeoutSeconds = 300
	DefaultVertexMaxRetry = 10
	DefaultModel          = "gemini-3-pro-image-preview"
)

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		Prompt:          DefaultPromptConfig(),
		Common:          DefaultCommonConfig(),
		VertexAnonymous: DefaultVertexAnonymousConfig(),
		Log:             DefaultLogConfig(),
	}
}

// DefaultPromptConfig 返回预设层默认生成参数。
func DefaultPromptConfig() types.PromptConfig {
	return types.PromptConfig{
		MinImages:   DefaultMinImages,
		MaxImages:   DefaultMaxImages,
		AspectRatio: DefaultAspectRatio,
		ImageSize:   DefaultImageSize,
	}
}

// DefaultCommonConfig 返回默认常规配置。
func DefaultCommonConfig() types.CommonConfig {
	return types.CommonConfig{
		SmartRetry:     true,
		MaxRetry:       DefaultMaxRetry,
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
}

// DefaultVertexAnonymousConfig 返回默认 Vertex AI Anonymous 配置。
func DefaultVertexAnonymousConfig() types.VertexAnonymousConfig {
	return types.VertexAnonymousConfig{
		RecaptchaBaseAPI: DefaultRecaptchaBaseAPI,
		BaseAPI:          DefaultVertexAnonymousAPIURL,
		MaxRetry:         DefaultVertexMaxRetry,
	}
}

// DefaultLogConfig 返回默认日志配置。
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info"}
}
