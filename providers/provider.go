// Package providers 定义提供商适配器契约与按 Key 轮换的重试引擎。
//
// 提供商集合是封闭的三元组 {Gemini, OpenAI_Chat, Vertex_AI_Anonymous}，
// 由 dispatch 包在构建时穷举装配，不提供运行时动态注册。
package providers

import (
	"context"

	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// Request 一次适配器调用的全部输入。
type Request struct {
	// Provider 当前使用的提供商配置，调用期间不可变。
	Provider *types.ProviderConfig
	// APIKey 本次尝试使用的密钥，由重试引擎从 Keys 中轮换选出。
	APIKey string
	// Params 已完成三层回退解析的生成参数。
	Params *types.ResolvedParams
	// Images 参考图片列表，作为内联图片部分跟在提示词之后。
	Images []types.ImagePayload
}

// Adapter 把规范参数翻译成某一后端的请求格式，发起调用并把
// 后端响应解析为规范结果或带状态信号的类型化失败。
//
// 返回值约定：图片列表非空即成功，此时 signal 与 err 可忽略；
// 失败时 signal 供重试引擎分类（可能为 nil，表示传输层错误），
// err 携带面向用户的消息。适配器不跨边界抛出未分类的故障。
type Adapter interface {
	// APIType 返回适配器对应的提供商类型标识。
	APIType() types.APIType
	// CallAPI 发起同步生成请求。
	CallAPI(ctx context.Context, req *Request) ([]types.ImagePayload, types.StatusSignal, *types.Error)
	// CallStreamAPI 发起流式（SSE）生成请求。结果形状与 CallAPI
	// 一致：响应体完整累积后才解析，不向调用方增量透出。
	CallStreamAPI(ctx context.Context, req *Request) ([]types.ImagePayload, types.StatusSignal, *types.Error)
}

// Generator 面向调度器的生成契约。常规提供商由 Engine 包装
// Adapter 实现；Vertex AI Anonymous 自带 token 刷新循环，
// 直接实现本接口。
type Generator interface {
	GenerateImages(ctx context.Context, cfg *types.ProviderConfig, params *types.ResolvedParams, images []types.ImagePayload) ([]types.ImagePayload, *types.Error)
}
