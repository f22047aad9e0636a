// Package gemini 实现 Google Gemini 图片生成适配器。
// Gemini API 特点：
// 1. 使用 x-goog-api-key 请求头认证
// 2. 图片以 inlineData(base64) 形式内联在候选内容中
// 3. 流式接口为 SSE（data: 行 + [DONE] 哨兵）
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sukafon/astrbot-plugin-big-banana/providers"
	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// Provider Gemini 适配器。
type Provider struct {
	client *http.Client
	logger *zap.Logger
}

// New 创建 Gemini 适配器。client 为多请求共享的 HTTP 客户端。
func New(client *http.Client, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Provider{client: client, logger: logger}
}

// APIType 实现 providers.Adapter。
func (p *Provider) APIType() types.APIType { return types.APITypeGemini }

// Gemini 请求结构
type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting   `json:"safetySettings"`
	Tools            []geminiTool            `json:"tools,omitempty"`
}

// Gemini 响应结构
type geminiCandidate struct {
	FinishReason string        `json:"finishReason,omitempty"`
	Content      geminiContent `json:"content"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// 内容安全过滤全部关闭，这是本领域的产品选择而非疏漏。
func geminiSafetySettings() []geminiSafetySetting {
	return []geminiSafetySetting{
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "OFF"},
		{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "OFF"},
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "OFF"},
		{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "OFF"},
	}
}

// buildRequest 构建请求体：单个 user 轮次，提示词文本在前，
// 参考图片按序内联在后。
func buildRequest(model string, params *types.ResolvedParams, images []types.ImagePayload) *geminiRequest {
	parts := []geminiPart{{Text: params.Prompt}}
	for _, img := range images {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{MimeType: img.MimeType, Data: img.Base64Data},
		})
	}

	// 响应模态：默认仅图片；启用文本响应或搜索工具时前置 TEXT
	modalities := []string{"IMAGE"}
	if params.TextResponse || params.GoogleSearch {
		modalities = []string{"TEXT", "IMAGE"}
	}

	req := &geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: parts,
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: modalities,
		},
		SafetySettings: geminiSafetySettings(),
	}

	imageCfg := geminiImageConfig{}
	if params.AspectRatio != "default" {
		imageCfg.AspectRatio = params.AspectRatio
	}
	// 以下参数仅 gemini-3 模型族有效
	if providers.IsModelFamily(model, "gemini-3") {
		imageCfg.ImageSize = params.ImageSize
		if params.GoogleSearch {
			req.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
		}
	}
	if imageCfg != (geminiImageConfig{}) {
		req.GenerationConfig.ImageConfig = &imageCfg
	}
	return req
}

func (p *Provider) buildHeaders(req *http.Request, apiKey string) {
	req.Header.Set("x-goog-api-key", apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// CallAPI 发起同步生成请求。
func (p *Provider) CallAPI(ctx context.Context, req *providers.Request) ([]types.ImagePayload, types.StatusSignal, *types.Error) {
	endpoint := fmt.Sprintf("%s/%s:generateContent",
		strings.TrimRight(req.Provider.APIURL, "/"), req.Provider.Model)

	status, body, err := p.post(ctx, endpoint, req)
	if err != nil {
		return nil, err.signal, err.err
	}

	if status != http.StatusOK {
		msg := readErrMsg(body)
		p.logger.Error("图片生成失败",
			zap.String("provider", req.Provider.APIName),
			zap.Int("status", status),
			zap.String("body", providers.Truncate(string(body), 1024)))
		return nil, types.HTTPStatus(status),
			types.NewError(types.ErrUpstreamError, "图片生成失败："+msg).
				WithHTTPStatus(status).WithProvider(req.Provider.APIName)
	}

	var result geminiResponse
	if jerr := json.Unmarshal(body, &result); jerr != nil {
		p.logger.Error("JSON 反序列化错误",
			zap.Error(jerr),
			zap.Int("status", status),
			zap.String("body", providers.Truncate(string(body), 1024)))
		return nil, types.HTTPStatus(status),
			types.NewError(types.ErrMalformedResponse, "图片生成失败：响应内容错误").
				WithProvider(req.Provider.APIName)
	}

	return p.parseResponse(req, &result, body)
}

// parseResponse 解析 200 响应。任一候选的 finishReason 非 STOP
// 即整体失败，不会只跳过该候选。
func (p *Provider) parseResponse(req *providers.Request, result *geminiResponse, body []byte) ([]types.ImagePayload, types.StatusSignal, *types.Error) {
	var images []types.ImagePayload
	for _, candidate := range result.Candidates {
		if candidate.FinishReason != "STOP" {
			p.logger.Warn("图片生成失败",
				zap.String("finish_reason", candidate.FinishReason),
				zap.String("body", providers.Truncate(string(body), 1024)))
			return nil, types.HTTPStatus(http.StatusOK),
				types.NewError(types.ErrUpstreamError,
					fmt.Sprintf("图片生成失败，原因: %s", candidate.FinishReason)).
					WithProvider(req.Provider.APIName)
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				images = append(images, types.ImagePayload{
					MimeType:   part.InlineData.MimeType,
					Base64Data: part.InlineData.Data,
				})
			}
		}
	}

	if len(images) == 0 {
		p.logger.Warn("请求成功，但未返回图片数据",
			zap.String("body", providers.Truncate(string(body), 1024)))
		if result.PromptFeedback != nil {
			reason := result.PromptFeedback.BlockReason
			if reason == "" {
				reason = "未获取到原因"
			}
			return nil, types.HTTPStatus(http.StatusOK),
				types.NewError(types.ErrContentFiltered,
					"请求被内容安全系统拦截，原因："+reason).
					WithProvider(req.Provider.APIName)
		}
		return nil, types.HTTPStatus(http.StatusOK),
			types.NewError(types.ErrNoImageData, "响应中未包含图片数据").
				WithProvider(req.Provider.APIName)
	}
	return images, types.HTTPStatus(http.StatusOK), nil
}

// CallStreamAPI 发起流式生成请求。SSE 响应体完整累积后再解析；
// 流式路径只收集图片数据，不检查 finishReason。
func (p *Provider) CallStreamAPI(ctx context.Context, req *providers.Request) ([]types.ImagePayload, types.StatusSignal, *types.Error) {
	endpoint := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse",
		strings.TrimRight(req.Provider.APIURL, "/"), req.Provider.Model)

	status, body, err := p.post(ctx, endpoint, req)
	if err != nil {
		return nil, err.signal, err.err
	}

	if status != http.StatusOK {
		p.logger.Error("图片生成失败",
			zap.String("provider", req.Provider.APIName),
			zap.Int("status", status),
			zap.String("body", providers.Truncate(string(body), 1024)))
		return nil, types.HTTPStatus(status),
			types.NewError(types.ErrUpstreamError,
				fmt.Sprintf("图片生成失败：状态码 %d", status)).
				WithHTTPStatus(status).WithProvider(req.Provider.APIName)
	}

	var images []types.ImagePayload
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "[DONE]" {
			break
		}
		var chunk geminiResponse
		if jerr := json.Unmarshal([]byte(data), &chunk); jerr != nil {
			continue
		}
		for _, candidate := range chunk.Candidates {
			for _, part := range candidate.Content.Parts {
				if part.InlineData != nil && part.InlineData.Data != "" {
					images = append(images, types.ImagePayload{
						MimeType:   part.InlineData.MimeType,
						Base64Data: part.InlineData.Data,
					})
				}
			}
		}
	}

	if len(images) == 0 {
		p.logger.Warn("请求成功，但未返回图片数据",
			zap.String("body", providers.Truncate(string(body), 1024)))
		return nil, types.HTTPStatus(http.StatusOK),
			types.NewError(types.ErrNoImageData, "响应中未包含图片数据").
				WithProvider(req.Provider.APIName)
	}
	return images, types.HTTPStatus(http.StatusOK), nil
}

// callError 传输层失败：signal 可能为 nil（无状态码可言）。
type callError struct {
	signal types.StatusSignal
	err    *types.Error
}

// post 发送请求并完整读取响应体。
func (p *Provider) post(ctx context.Context, endpoint string, req *providers.Request) (int, []byte, *callError) {
	cctx, cancel := context.WithTimeout(ctx, req.Params.Timeout)
	defer cancel()

	payload, _ := json.Marshal(buildRequest(req.Provider.Model, req.Params, req.Images))
	httpReq, herr := http.NewRequestWithContext(cctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if herr != nil {
		return 0, nil, &callError{
			err: types.NewError(types.ErrInternalError, "图片生成失败：程序错误").
				WithCause(herr).WithProvider(req.Provider.APIName),
		}
	}
	p.buildHeaders(httpReq, req.APIKey)

	resp, derr := p.client.Do(httpReq)
	if derr != nil {
		if errors.Is(derr, context.DeadlineExceeded) || cctx.Err() == context.DeadlineExceeded {
			p.logger.Error("网络请求超时", zap.Error(derr))
			return 0, nil, &callError{
				signal: types.HTTPStatus(http.StatusRequestTimeout),
				err: types.NewError(types.ErrUpstreamTimeout, "图片生成失败：响应超时").
					WithCause(derr).WithProvider(req.Provider.APIName),
			}
		}
		p.logger.Error("请求错误", zap.Error(derr))
		return 0, nil, &callError{
			err: types.NewError(types.ErrUpstreamError, "图片生成失败：程序错误").
				WithCause(derr).WithProvider(req.Provider.APIName),
		}
	}
	defer resp.Body.Close()

	body, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		p.logger.Error("读取响应失败", zap.Error(rerr))
		return 0, nil, &callError{
			err: types.NewError(types.ErrUpstreamError, "图片生成失败：程序错误").
				WithCause(rerr).WithProvider(req.Provider.APIName),
		}
	}
	return resp.StatusCode, body, nil
}

func readErrMsg(body []byte) string {
	var errResp geminiErrorResp
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return "未知原因"
}
