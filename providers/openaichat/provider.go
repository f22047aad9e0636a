// Package openaichat 实现 OpenAI Chat Completions 兼容接口的图片生成适配器。
// 这类后端把生成的图片藏在助手消息文本里：要么是 markdown 图片语法
// 内嵌的 data URI，要么是指向图床的普通 URL，适配器负责把两种形态
// 都还原成统一的图片载荷。
package openaichat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sukafon/astrbot-plugin-big-banana/download"
	"github.com/sukafon/astrbot-plugin-big-banana/providers"
	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// markdownImageRe 匹配 markdown 图片语法 ![alt](target)。
var markdownImageRe = regexp.MustCompile(`!\[.*?\]\((.*?)\)`)

// Provider OpenAI Chat 适配器。
type Provider struct {
	client     *http.Client
	downloader *download.Downloader
	logger     *zap.Logger
}

// New 创建 OpenAI Chat 适配器。downloader 用于拉取响应里的图片 URL。
func New(client *http.Client, downloader *download.Downloader, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Provider{client: client, downloader: downloader, logger: logger}
}

// APIType 实现 providers.Adapter。
func (p *Provider) APIType() types.APIType { return types.APITypeOpenAIChat }

// 请求结构：多模态 user 消息
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// 响应结构
type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// buildRequest 构建请求体：文本部分在前，参考图片以 data URI
// 形式跟在后面。
func buildRequest(model string, params *types.ResolvedParams, images []types.ImagePayload, stream bool) *chatRequest {
	parts := []contentPart{{Type: "text", Text: params.Prompt}}
	for _, img := range images {
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Base64Data),
			},
		})
	}
	return &chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: parts}},
		Stream:   stream,
	}
}

// CallAPI 发起同步生成请求。
func (p *Provider) CallAPI(ctx context.Context, req *providers.Request) ([]types.ImagePayload, types.StatusSignal, *types.Error) {
	status, body, cerr := p.post(ctx, req, false)
	if cerr != nil {
		return nil, cerr.signal, cerr.err
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

	var result chatResponse
	if jerr := json.Unmarshal(body, &result); jerr != nil {
		p.logger.Error("JSON 反序列化错误",
			zap.Error(jerr),
			zap.String("body", providers.Truncate(string(body), 1024)))
		return nil, types.HTTPStatus(status),
			types.NewError(types.ErrMalformedResponse, "图片生成失败：响应内容错误").
				WithProvider(req.Provider.APIName)
	}

	var content strings.Builder
	for _, choice := range result.Choices {
		// 只有 stop 代表可用输出，其余原因整体判失败
		if choice.FinishReason != "" && choice.FinishReason != "stop" {
			p.logger.Warn("图片生成失败",
				zap.String("finish_reason", choice.FinishReason),
				zap.String("body", providers.Truncate(string(body), 1024)))
			return nil, types.HTTPStatus(http.StatusOK),
				types.NewError(types.ErrUpstreamError,
					fmt.Sprintf("图片生成失败，原因: %s", choice.FinishReason)).
					WithProvider(req.Provider.APIName)
		}
		content.WriteString(choice.Message.Content)
	}
	return p.extractImages(ctx, req, content.String())
}

// CallStreamAPI 发起流式生成请求。SSE 响应体完整累积后解析，
// 各分片的 delta 内容拼接成完整文本再提取图片。
func (p *Provider) CallStreamAPI(ctx context.Context, req *providers.Request) ([]types.ImagePayload, types.StatusSignal, *types.Error) {
	status, body, cerr := p.post(ctx, req, true)
	if cerr != nil {
		return nil, cerr.signal, cerr.err
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

	var content strings.Builder
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "[DONE]" {
			break
		}
		var chunk chatResponse
		if jerr := json.Unmarshal([]byte(data), &chunk); jerr != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" && choice.FinishReason != "stop" {
				p.logger.Warn("图片生成失败",
					zap.String("finish_reason", choice.FinishReason))
				return nil, types.HTTPStatus(http.StatusOK),
					types.NewError(types.ErrUpstreamError,
						fmt.Sprintf("图片生成失败，原因: %s", choice.FinishReason)).
						WithProvider(req.Provider.APIName)
			}
			content.WriteString(choice.Delta.Content)
		}
	}
	return p.extractImages(ctx, req, content.String())
}

// extractImages 从助手消息文本提取图片。data URI 直接切出
// base64 载荷；普通 URL 交给下载器拉取。"无图片数据" 与
// "有 URL 但全部下载失败" 是两种不同的失败。
func (p *Provider) extractImages(ctx context.Context, req *providers.Request, content string) ([]types.ImagePayload, types.StatusSignal, *types.Error) {
	matches := markdownImageRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		p.logger.Warn("请求成功，但未返回图片数据",
			zap.String("content", providers.Truncate(content, 1024)))
		return nil, types.HTTPStatus(http.StatusOK),
			types.NewError(types.ErrNoImageData, "响应中未包含图片数据").
				WithProvider(req.Provider.APIName)
	}

	var images []types.ImagePayload
	var urls []string
	for _, m := range matches {
		target := strings.TrimSpace(m[1])
		if strings.HasPrefix(target, "data:") {
			if payload, ok := parseDataURI(target); ok {
				images = append(images, payload)
			}
			continue
		}
		if target != "" {
			urls = append(urls, target)
		}
	}
	if len(urls) > 0 {
		images = append(images, p.downloader.FetchMany(ctx, urls)...)
	}

	if len(images) == 0 {
		return nil, types.HTTPStatus(http.StatusOK),
			types.NewError(types.ErrDownloadFailed, "图片生成失败：图片下载失败").
				WithProvider(req.Provider.APIName)
	}
	return images, types.HTTPStatus(http.StatusOK), nil
}

// parseDataURI 解析 data:<mime>;base64,<data> 形式的内联图片。
// 只在首个逗号处切分，保留 base64 载荷中的填充字符。
func parseDataURI(uri string) (types.ImagePayload, bool) {
	head, data, found := strings.Cut(uri, ",")
	if !found || data == "" {
		return types.ImagePayload{}, false
	}
	mimeType := "image/png"
	head = strings.TrimPrefix(head, "data:")
	if i := strings.Index(head, ";"); i > 0 {
		mimeType = head[:i]
	} else if head != "" {
		mimeType = head
	}
	return types.ImagePayload{MimeType: mimeType, Base64Data: data}, true
}

type callError struct {
	signal types.StatusSignal
	err    *types.Error
}

// post 发送请求并完整读取响应体。
func (p *Provider) post(ctx context.Context, req *providers.Request, stream bool) (int, []byte, *callError) {
	cctx, cancel := context.WithTimeout(ctx, req.Params.Timeout)
	defer cancel()

	// api_url 即完整端点，默认值已含 /chat/completions 路径
	endpoint := req.Provider.APIURL
	payload, _ := json.Marshal(buildRequest(req.Provider.Model, req.Params, req.Images, stream))
	httpReq, herr := http.NewRequestWithContext(cctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if herr != nil {
		return 0, nil, &callError{
			err: types.NewError(types.ErrInternalError, "图片生成失败：程序错误").
				WithCause(herr).WithProvider(req.Provider.APIName),
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

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
	var errResp chatResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return "未知原因"
}
