package imaging

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

func TestReadFile(t *testing.T) {
	p := NewProcessor(zap.NewNop())
	dir := t.TempDir()

	data := []byte{0x89, 'P', 'N', 'G'}
	path := filepath.Join(dir, "ref.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	payload, err := p.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", payload.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(data), payload.Base64Data)
}

func TestReadFile_Missing(t *testing.T) {
	p := NewProcessor(zap.NewNop())
	_, err := p.ReadFile(filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}

func TestReadFile_UnknownExtension(t *testing.T) {
	p := NewProcessor(zap.NewNop())
	path := filepath.Join(t.TempDir(), "ref.unknownext")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := p.ReadFile(path)
	assert.Error(t, err)
}

func TestSaveImages(t *testing.T) {
	p := NewProcessor(zap.NewNop())
	dir := t.TempDir()

	paths, err := p.SaveImages([]types.ImagePayload{
		{MimeType: "image/png", Base64Data: base64.StdEncoding.EncodeToString([]byte("png-bytes"))},
		{MimeType: "image/png", Base64Data: ""}, // 空载荷跳过
	}, dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	assert.Equal(t, ".png", filepath.Ext(paths[0]))
	content, rerr := os.ReadFile(paths[0])
	require.NoError(t, rerr)
	assert.Equal(t, []byte("png-bytes"), content)
}
