package imaging

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// SaveImages 把生成结果保存到指定目录，返回写入的文件路径列表。
// 文件名形如 banana_20260831120000123.png，空载荷跳过。
func (p *Processor) SaveImages(results []types.ImagePayload, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}

	var paths []string
	for _, result := range results {
		if result.Base64Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(result.Base64Data)
		if err != nil {
			p.logger.Warn("图片数据解码失败，跳过保存", zap.Error(err))
			continue
		}
		now := time.Now()
		name := fmt.Sprintf("banana_%s%03d%s",
			now.Format("20060102150405"), now.Nanosecond()/1e6, extensionFor(result.MimeType))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("write image %s: %w", path, err)
		}
		p.logger.Info("图片已保存", zap.String("path", path))
		paths = append(paths, path)
	}
	return paths, nil
}

func extensionFor(mimeType string) string {
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ".jpg"
	}
	// 优先常见扩展名，避免 .jpe 这类冷门候选
	for _, ext := range exts {
		switch ext {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
			return ext
		}
	}
	return exts[0]
}
