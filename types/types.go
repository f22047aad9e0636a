package types

import "time"

// APIType 提供商 API 格式类型。提供商集合是封闭的：
// 新增类型需要同时注册对应的适配器实现。
type APIType string

const (
	APITypeGemini          APIType = "Gemini"
	APITypeOpenAIChat      APIType = "OpenAI_Chat"
	APITypeVertexAnonymous APIType = "Vertex_AI_Anonymous"
)

// Valid 报告该类型是否属于已知的提供商类型。
func (t APIType) Valid() bool {
	switch t {
	case APITypeGemini, APITypeOpenAIChat, APITypeVertexAnonymous:
		return true
	}
	return false
}

// ImagePayload 规范图片载荷，组件之间交换图片的统一单位。
// 值类型，可自由复制。
type ImagePayload struct {
	MimeType   string `json:"mime_type"`
	Base64Data string `json:"base64_data"`
}

// GenerationParams 单次请求的生成参数。
// 指针字段表示"未显式指定"，解析时依次回退到预设层与全局默认层，
// 见 config.ResolveParams。
type GenerationParams struct {
	// Prompt 提示词文本。
	Prompt string
	// Providers 请求级提供商列表覆盖，按顺序尝试。
	// 允许单元素 "a,b,c" 形式的逗号分隔字符串。
	Providers []string
	// ReferImageURLs 参考图片 URL 列表，调度前下载。
	ReferImageURLs []string
	// ReferImages 参考图片文件名列表，从配置目录读取。
	ReferImages []string

	MinImages    *int
	MaxImages    *int
	AspectRatio  *string
	ImageSize    *string
	GoogleSearch *bool
	// TextResponse 是否在图片之外同时返回文本（include_text_response）。
	TextResponse *bool
	SmartRetry   *bool
	MaxRetry     *int
	Timeout      *time.Duration
	// Proxy 仅为兼容保留：代理在启动时绑定到共享传输层，
	// 修改需要重载而非请求级热切换。
	Proxy *string
}

// ResolvedParams 三层回退解析后的生成参数，所有字段均已定值。
// 适配器只消费该结构，不再做任何默认值推断。
type ResolvedParams struct {
	Prompt       string
	Providers    []string
	MinImages    int
	MaxImages    int
	AspectRatio  string
	ImageSize    string
	GoogleSearch bool
	TextResponse bool
	SmartRetry   bool
	ReferImages  []string
	MaxRetry     int
	Timeout      time.Duration
	Proxy        string
}
