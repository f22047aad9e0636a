package types

import "time"

// ProviderConfig 一个已配置后端的描述。
// 启动时从持久化配置构建，单次请求期间不可变；
// 外部管理工具修改后通过重载生效，不做运行中热变更。
type ProviderConfig struct {
	// APIName 提供商名称，唯一键，用于区分主/备等多个实例。
	APIName string `yaml:"api_name" json:"api_name"`
	// Enabled 是否加入默认调度列表。
	Enabled bool `yaml:"enabled" json:"enabled"`
	// APIType API 格式类型，必须匹配已注册的适配器。
	APIType APIType `yaml:"api_type" json:"api_type"`
	// Keys API 密钥列表。Vertex_AI_Anonymous 类型不需要。
	Keys []string `yaml:"keys" json:"keys"`
	// APIURL API 地址，留空时按类型填充默认地址。
	APIURL string `yaml:"api_url" json:"api_url"`
	// Model 模型名称。
	Model string `yaml:"model" json:"model"`
	// Stream 是否走流式（SSE）接口。
	Stream bool `yaml:"stream" json:"stream"`
}

// PromptConfig 图片生成参数的预设层默认值。
type PromptConfig struct {
	// MinImages 最少参考图片数量。0 表示允许无图。
	MinImages int `yaml:"min_images" json:"min_images"`
	// MaxImages 最多参考图片数量。
	MaxImages int `yaml:"max_images" json:"max_images"`
	// AspectRatio 图片宽高比，哨兵值 "default" 表示不下发该字段。
	AspectRatio string `yaml:"aspect_ratio" json:"aspect_ratio"`
	// ImageSize 图片尺寸/分辨率档位。
	ImageSize string `yaml:"image_size" json:"image_size"`
	// GoogleSearch 是否启用谷歌搜索工具。
	GoogleSearch bool `yaml:"google_search" json:"google_search"`
	// ReferImages 参考图片文件名列表。
	ReferImages []string `yaml:"refer_images" json:"refer_images"`
}

// CommonConfig 常规配置参数（全局层）。
type CommonConfig struct {
	// TextResponse 是否在图片之外同时返回文本。
	TextResponse bool `yaml:"include_text_response" json:"include_text_response"`
	// SmartRetry 命中不可重试状态码时跳过剩余重试额度。
	SmartRetry bool `yaml:"smart_retry" json:"smart_retry"`
	// MaxRetry 每个 Key 的最大重试次数。
	MaxRetry int `yaml:"max_retry" json:"max_retry"`
	// TimeoutSeconds 单次生成请求超时，单位秒。
	TimeoutSeconds float64 `yaml:"timeout" json:"timeout"`
	// Proxy 出站代理 URL，作用于共享传输层。
	Proxy string `yaml:"proxy" json:"proxy"`
}

// Timeout 以 time.Duration 返回请求超时。
func (c CommonConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// VertexAnonymousConfig Vertex AI Anonymous 专属配置。
// 该后端的 token 换取会消耗重试额度，因此重试上限独立配置，
// 通常大于通用的 max_retry。
type VertexAnonymousConfig struct {
	// RecaptchaBaseAPI reCAPTCHA 基础地址。
	RecaptchaBaseAPI string `yaml:"recaptcha_base_api" json:"recaptcha_base_api"`
	// BaseAPI Vertex AI Anonymous 基础地址。
	BaseAPI string `yaml:"base_api" json:"base_api"`
	// SystemPrompt 可选系统提示词。
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
	// MaxRetry 最大重试次数。
	MaxRetry int `yaml:"max_retry" json:"max_retry"`
}
