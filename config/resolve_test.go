package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

func TestResolveParams_RequestOverridesPreset(t *testing.T) {
	preset := DefaultPromptConfig()
	common := DefaultCommonConfig()

	minImages := 0
	aspect := "16:9"
	smart := false
	timeout := 42 * time.Second

	r := ResolveParams(&types.GenerationParams{
		Prompt:      "画一只猫",
		MinImages:   &minImages,
		AspectRatio: &aspect,
		SmartRetry:  &smart,
		Timeout:     &timeout,
	}, &preset, &common)

	assert.Equal(t, "画一只猫", r.Prompt)
	assert.Equal(t, 0, r.MinImages)
	assert.Equal(t, "16:9", r.AspectRatio)
	assert.False(t, r.SmartRetry)
	assert.Equal(t, 42*time.Second, r.Timeout)
	// 未覆盖的字段回退到预设层/全局层
	assert.Equal(t, DefaultMaxImages, r.MaxImages)
	assert.Equal(t, DefaultImageSize, r.ImageSize)
	assert.Equal(t, DefaultMaxRetry, r.MaxRetry)
}

func TestResolveParams_NilRequest(t *testing.T) {
	preset := DefaultPromptConfig()
	common := DefaultCommonConfig()

	r := ResolveParams(nil, &preset, &common)
	assert.Equal(t, DefaultMinImages, r.MinImages)
	assert.Equal(t, DefaultAspectRatio, r.AspectRatio)
	assert.Equal(t, 300*time.Second, r.Timeout)
}

func TestResolveParams_GuardRails(t *testing.T) {
	preset := DefaultPromptConfig()
	common := DefaultCommonConfig()

	badRetry := 0
	badTimeout := -time.Second
	minImages := 5
	maxImages := 2

	r := ResolveParams(&types.GenerationParams{
		MaxRetry:  &badRetry,
		Timeout:   &badTimeout,
		MinImages: &minImages,
		MaxImages: &maxImages,
	}, &preset, &common)

	assert.Equal(t, DefaultMaxRetry, r.MaxRetry)
	assert.Equal(t, DefaultTimeoutSeconds*time.Second, r.Timeout)
	assert.GreaterOrEqual(t, r.MaxImages, r.MinImages)
}

// 三层回退的性质：显式指定的请求级字段永远胜出，未指定的字段
// 与预设层一致，且解析结果总是满足守卫条件。
func TestResolveParams_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		preset := types.PromptConfig{
			MinImages:   rapid.IntRange(0, 4).Draw(t, "presetMin"),
			MaxImages:   rapid.IntRange(4, 9).Draw(t, "presetMax"),
			AspectRatio: rapid.SampledFrom([]string{"default", "1:1", "16:9"}).Draw(t, "presetAspect"),
			ImageSize:   rapid.SampledFrom([]string{"1K", "2K", "4K"}).Draw(t, "presetSize"),
		}
		common := DefaultCommonConfig()

		req := &types.GenerationParams{}
		var wantMin int
		if rapid.Bool().Draw(t, "hasMin") {
			wantMin = rapid.IntRange(0, 9).Draw(t, "reqMin")
			req.MinImages = &wantMin
		} else {
			wantMin = preset.MinImages
		}
		var wantAspect string
		if rapid.Bool().Draw(t, "hasAspect") {
			wantAspect = rapid.SampledFrom([]string{"default", "4:3", "9:16"}).Draw(t, "reqAspect")
			req.AspectRatio = &wantAspect
		} else {
			wantAspect = preset.AspectRatio
		}

		r := ResolveParams(req, &preset, &common)

		assert.Equal(t, wantMin, r.MinImages)
		assert.Equal(t, wantAspect, r.AspectRatio)
		assert.GreaterOrEqual(t, r.MaxImages, r.MinImages)
		assert.GreaterOrEqual(t, r.MaxRetry, 1)
		assert.Greater(t, r.Timeout, time.Duration(0))
	})
}
