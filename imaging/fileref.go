package imaging

import (
	"encoding/base64"
	"mime"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// ReadFile 读取本地参考图片文件，按扩展名推断 mime 类型。
// 读取失败或无法推断类型时返回错误，调用方按跳过处理。
func (p *Processor) ReadFile(path string) (types.ImagePayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		p.logger.Error("读取参考图片失败", zap.String("path", path), zap.Error(err))
		return types.ImagePayload{}, types.NewError(types.ErrInternalError, "读取参考图片失败").WithCause(err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		p.logger.Error("无法识别参考图片类型", zap.String("path", path))
		return types.ImagePayload{}, types.NewError(types.ErrInternalError, "无法识别参考图片类型")
	}
	return types.ImagePayload{
		MimeType:   mimeType,
		Base64Data: base64.StdEncoding.EncodeToString(data),
	}, nil
}
