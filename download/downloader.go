// Package download 负责参考图片与响应内图片 URL 的拉取，
// 成功的字节流交给 imaging 归一化。
package download

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sukafon/astrbot-plugin-big-banana/imaging"
	"github.com/sukafon/astrbot-plugin-big-banana/observability"
	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

const (
	// fetchTimeout 单次 GET 的固定超时。
	fetchTimeout = 30 * time.Second
	// fetchAttempts 单个 URL 的重试预算。
	fetchAttempts = 3
)

// Downloader 图片下载器。client 由上层注入并在多请求间共享；
// insecure 是关闭证书校验的备用客户端，仅在 TLS 校验失败后
// 显式降级重试一次 —— 这是对上游证书配置不当的兼容手段，
// 不是默认行为。
type Downloader struct {
	client    *http.Client
	insecure  *http.Client
	processor *imaging.Processor
	logger    *zap.Logger
}

// NewDownloader 创建下载器。
func NewDownloader(client *http.Client, processor *imaging.Processor, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Downloader{
		client:    client,
		insecure:  insecureClient(client),
		processor: processor,
		logger:    logger,
	}
}

// insecureClient 从共享客户端派生一个跳过证书校验的客户端。
func insecureClient(base *http.Client) *http.Client {
	transport, ok := base.Transport.(*http.Transport)
	if !ok || transport == nil {
		transport = http.DefaultTransport.(*http.Transport)
	}
	clone := transport.Clone()
	if clone.TLSClientConfig == nil {
		clone.TLSClientConfig = &tls.Config{}
	}
	clone.TLSClientConfig.InsecureSkipVerify = true
	return &http.Client{Transport: clone}
}

// FetchOne 下载单张图片并归一化。每个 URL 有 fetchAttempts 次
// 重试预算，全部失败返回 nil。
func (d *Downloader) FetchOne(ctx context.Context, url string) *types.ImagePayload {
	for i := 0; i < fetchAttempts; i++ {
		payload, retryable := d.download(ctx, url)
		if payload != nil {
			observability.ObserveDownload(true)
			return payload
		}
		if !retryable || ctx.Err() != nil {
			break
		}
	}
	observability.ObserveDownload(false)
	return nil
}

// FetchMany 按输入顺序下载多张图片，失败的 URL 静默丢弃。
func (d *Downloader) FetchMany(ctx context.Context, urls []string) []types.ImagePayload {
	var payloads []types.ImagePayload
	for _, url := range urls {
		if payload := d.FetchOne(ctx, url); payload != nil {
			payloads = append(payloads, *payload)
		}
	}
	return payloads
}

// download 执行一次 GET。第二个返回值指示失败后是否值得重试：
// 超大图片直接跳过，不消耗剩余重试预算。
func (d *Downloader) download(ctx context.Context, url string) (*types.ImagePayload, bool) {
	cctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	raw, err := d.get(cctx, d.client, url)
	if err != nil && isTLSVerifyError(err) {
		d.logger.Warn("TLS 证书校验失败，关闭校验后重试", zap.String("url", url), zap.Error(err))
		raw, err = d.get(cctx, d.insecure, url)
	}
	if err != nil {
		if isTimeout(err) {
			d.logger.Error("网络请求超时", zap.String("url", url), zap.Error(err))
		} else {
			d.logger.Error("下载图片失败", zap.String("url", url), zap.Error(err))
		}
		return nil, true
	}

	payload, err := d.processor.Normalize(ctx, raw)
	if err != nil {
		d.logger.Warn("图片处理失败", zap.String("url", url), zap.Error(err))
		return nil, false
	}
	return &payload, true
}

func (d *Downloader) get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	// 读取上限比处理上限多 1 字节，让超大图片触发大小拒绝
	return io.ReadAll(io.LimitReader(resp.Body, imaging.MaxImageBytes+1))
}

// isTLSVerifyError 识别证书校验类失败，只有这类错误允许降级重试。
func isTLSVerifyError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}
	var hostname x509.HostnameError
	if errors.As(err, &hostname) {
		return true
	}
	var invalid x509.CertificateInvalidError
	return errors.As(err, &invalid)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
