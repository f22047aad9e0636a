// Package imaging 把原始图片字节归一化为规范的 (mime, base64) 载荷，
// 动图只保留第一帧。
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/draw"
	"image/gif"
	"image/png"
	"runtime"

	_ "image/jpeg" // 注册 JPEG 解码器用于格式嗅探

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// MaxImageBytes 单张图片的大小上限，超过即拒绝处理。
const MaxImageBytes = 36 << 20

// ErrImageTooLarge 图片超过 MaxImageBytes，调用方应跳过该图片
// 而不是让整批失败。
var ErrImageTooLarge = types.NewError(types.ErrImageTooLarge, "图片超过 36MB，跳过处理")

// Processor 图片归一化处理器。
// GIF 解码/重编码是短暂的 CPU 密集操作，用信号量限制并发，
// 避免高负载下饿死其它在途请求。
type Processor struct {
	logger *zap.Logger
	sem    *semaphore.Weighted
}

// NewProcessor 创建处理器。
func NewProcessor(logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		logger: logger,
		sem:    semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Normalize 把原始字节归一化为规范图片载荷。
//
// 格式从字节内容本身嗅探，不看 URL 或文件名。GIF 取第一帧转成
// RGBA 再编码为 PNG；其它可解码格式原样返回 image/<format>；
// 完全无法解码时原样返回并标注 image/gif，保证数据不丢。
// 除大小超限外不向外传播任何失败。
func (p *Processor) Normalize(ctx context.Context, raw []byte) (types.ImagePayload, error) {
	if len(raw) > MaxImageBytes {
		return types.ImagePayload{}, ErrImageTooLarge
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		p.logger.Warn("图片格式识别失败，返回原图", zap.Error(err))
		return types.ImagePayload{
			MimeType:   "image/gif",
			Base64Data: base64.StdEncoding.EncodeToString(raw),
		}, nil
	}

	if format != "gif" {
		return types.ImagePayload{
			MimeType:   "image/" + format,
			Base64Data: base64.StdEncoding.EncodeToString(raw),
		}, nil
	}

	payload, err := p.convertGIF(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return types.ImagePayload{}, types.NewError(types.ErrCancelled, "图片处理被取消").WithCause(err)
		}
		p.logger.Warn("GIF 处理失败，返回原图", zap.Error(err))
		return types.ImagePayload{
			MimeType:   "image/gif",
			Base64Data: base64.StdEncoding.EncodeToString(raw),
		}, nil
	}
	return payload, nil
}

// convertGIF 取 GIF 第一帧，转 RGBA 后重编码为 PNG。
func (p *Processor) convertGIF(ctx context.Context, raw []byte) (types.ImagePayload, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return types.ImagePayload{}, err
	}
	defer p.sem.Release(1)

	// gif.Decode 只解码第一帧
	frame, err := gif.Decode(bytes.NewReader(raw))
	if err != nil {
		return types.ImagePayload{}, err
	}

	rgba := image.NewRGBA(frame.Bounds())
	draw.Draw(rgba, rgba.Bounds(), frame, frame.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return types.ImagePayload{}, err
	}
	return types.ImagePayload{
		MimeType:   "image/png",
		Base64Data: base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
