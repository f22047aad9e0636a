package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sukafon/astrbot-plugin-big-banana/providers"
	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

func testParams() *types.ResolvedParams {
	return &types.ResolvedParams{
		Prompt:      "画一只香蕉猫",
		AspectRatio: "default",
		ImageSize:   "2K",
		Timeout:     time.Minute,
	}
}

func newRequest(apiURL, model string, params *types.ResolvedParams, images []types.ImagePayload) *providers.Request {
	return &providers.Request{
		Provider: &types.ProviderConfig{
			APIName: "gemini-main",
			APIType: types.APITypeGemini,
			APIURL:  apiURL,
			Model:   model,
		},
		APIKey: "test-key",
		Params: params,
		Images: images,
	}
}

func successBody(mime, data string) string {
	return `{"candidates":[{"finishReason":"STOP","content":{"parts":[{"inlineData":{"mimeType":"` + mime + `","data":"` + data + `"}}]}}]}`
}

func TestCallAPI_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		gotBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, successBody("image/png", "aW1n"))
	}))
	defer srv.Close()

	p := New(srv.Client(), zap.NewNop())
	images, sig, err := p.CallAPI(context.Background(),
		newRequest(srv.URL, "gemini-3-pro-image-preview", testParams(),
			[]types.ImagePayload{{MimeType: "image/jpeg", Base64Data: "cmVm"}}))

	require.Nil(t, err)
	assert.Equal(t, types.HTTPStatus(200), sig)
	require.Len(t, images, 1)
	assert.Equal(t, "image/png", images[0].MimeType)
	assert.Equal(t, "aW1n", images[0].Base64Data)

	assert.Equal(t, "/gemini-3-pro-image-preview:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)

	var body map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &body))
	contents := body["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	// 提示词文本在前，参考图片内联在后
	require.Len(t, parts, 2)
	assert.Equal(t, "画一只香蕉猫", parts[0].(map[string]any)["text"])
	assert.NotNil(t, parts[1].(map[string]any)["inlineData"])
	// 安全过滤全部 OFF
	assert.Len(t, body["safetySettings"].([]any), 4)
}

func TestBuildRequest_AspectRatio(t *testing.T) {
	params := testParams()
	req := buildRequest("gemini-2.5-flash-image", params, nil)
	// 哨兵值 default 不下发 aspectRatio；非 gemini-3 也不下发 imageSize
	require.Nil(t, req.GenerationConfig.ImageConfig)

	params.AspectRatio = "16:9"
	req = buildRequest("gemini-2.5-flash-image", params, nil)
	require.NotNil(t, req.GenerationConfig.ImageConfig)
	assert.Equal(t, "16:9", req.GenerationConfig.ImageConfig.AspectRatio)
	assert.Empty(t, req.GenerationConfig.ImageConfig.ImageSize)
}

func TestBuildRequest_Gemini3Fields(t *testing.T) {
	params := testParams()
	params.AspectRatio = "4:3"
	params.GoogleSearch = true
	req := buildRequest("gemini-3-pro-image-preview", params, nil)

	// 宽高比与分辨率进入同一个 imageConfig，互不覆盖
	require.NotNil(t, req.GenerationConfig.ImageConfig)
	assert.Equal(t, "4:3", req.GenerationConfig.ImageConfig.AspectRatio)
	assert.Equal(t, "2K", req.GenerationConfig.ImageConfig.ImageSize)
	require.Len(t, req.Tools, 1)

	data, err := json.Marshal(req.Tools[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"google_search":{}}`, string(data))
}

func TestBuildRequest_ResponseModalities(t *testing.T) {
	params := testParams()
	req := buildRequest("gemini-3-pro-image-preview", params, nil)
	assert.Equal(t, []string{"IMAGE"}, req.GenerationConfig.ResponseModalities)

	params.TextResponse = true
	req = buildRequest("gemini-3-pro-image-preview", params, nil)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, req.GenerationConfig.ResponseModalities)

	// 搜索工具需要文本通道承载引用
	params.TextResponse = false
	params.GoogleSearch = true
	req = buildRequest("gemini-3-pro-image-preview", params, nil)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, req.GenerationConfig.ResponseModalities)
}

func TestCallAPI_NonStopFinishReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[{"finishReason":"PROHIBITED_CONTENT","content":{"parts":[]}}]}`)
	}))
	defer srv.Close()

	p := New(srv.Client(), zap.NewNop())
	images, sig, err := p.CallAPI(context.Background(),
		newRequest(srv.URL, "gemini-3-pro-image-preview", testParams(), nil))

	assert.Nil(t, images)
	assert.Equal(t, types.HTTPStatus(200), sig)
	require.NotNil(t, err)
	assert.Equal(t, "图片生成失败，原因: PROHIBITED_CONTENT", err.Message)
}

func TestCallAPI_PromptFeedbackBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	p := New(srv.Client(), zap.NewNop())
	_, _, err := p.CallAPI(context.Background(),
		newRequest(srv.URL, "gemini-3-pro-image-preview", testParams(), nil))

	require.NotNil(t, err)
	assert.Equal(t, types.ErrContentFiltered, err.Code)
	assert.Equal(t, "请求被内容安全系统拦截，原因：SAFETY", err.Message)
}

func TestCallAPI_NoImageData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[{"finishReason":"STOP","content":{"parts":[{"text":"说明文字"}]}}]}`)
	}))
	defer srv.Close()

	p := New(srv.Client(), zap.NewNop())
	_, _, err := p.CallAPI(context.Background(),
		newRequest(srv.URL, "gemini-3-pro-image-preview", testParams(), nil))

	require.NotNil(t, err)
	assert.Equal(t, types.ErrNoImageData, err.Code)
	assert.Equal(t, "响应中未包含图片数据", err.Message)
}

func TestCallAPI_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"code":503,"message":"model overloaded","status":"UNAVAILABLE"}}`)
	}))
	defer srv.Close()

	p := New(srv.Client(), zap.NewNop())
	_, sig, err := p.CallAPI(context.Background(),
		newRequest(srv.URL, "gemini-3-pro-image-preview", testParams(), nil))

	assert.Equal(t, types.HTTPStatus(503), sig)
	require.NotNil(t, err)
	assert.Equal(t, types.ErrUpstreamError, err.Code)
	assert.Contains(t, err.Message, "model overloaded")
}

func TestCallAPI_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not json</html>")
	}))
	defer srv.Close()

	p := New(srv.Client(), zap.NewNop())
	_, _, err := p.CallAPI(context.Background(),
		newRequest(srv.URL, "gemini-3-pro-image-preview", testParams(), nil))

	require.NotNil(t, err)
	assert.Equal(t, types.ErrMalformedResponse, err.Code)
	assert.Equal(t, "图片生成失败：响应内容错误", err.Message)
}

func TestCallAPI_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	params := testParams()
	params.Timeout = 30 * time.Millisecond
	p := New(srv.Client(), zap.NewNop())
	_, sig, err := p.CallAPI(context.Background(),
		newRequest(srv.URL, "gemini-3-pro-image-preview", params, nil))

	assert.Equal(t, types.HTTPStatus(408), sig)
	require.NotNil(t, err)
	assert.Equal(t, types.ErrUpstreamTimeout, err.Code)
	assert.Equal(t, "图片生成失败：响应超时", err.Message)
}

func TestCallStreamAPI_CollectsChunks(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		io.WriteString(w, "data: "+successBody("image/png", "Zmlyc3Q=")+"\n\n")
		io.WriteString(w, "data: "+successBody("image/png", "c2Vjb25k")+"\n\n")
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	p := New(srv.Client(), zap.NewNop())
	images, sig, err := p.CallStreamAPI(context.Background(),
		newRequest(srv.URL, "gemini-3-pro-image-preview", testParams(), nil))

	require.Nil(t, err)
	assert.Equal(t, types.HTTPStatus(200), sig)
	require.Len(t, images, 2)
	assert.Equal(t, "Zmlyc3Q=", images[0].Base64Data)
	assert.Equal(t, "c2Vjb25k", images[1].Base64Data)
	assert.Equal(t, "/gemini-3-pro-image-preview:streamGenerateContent?alt=sse", gotPath)
}

func TestCallStreamAPI_NoImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"candidates\":[]}\n\ndata: [DONE]\n")
	}))
	defer srv.Close()

	p := New(srv.Client(), zap.NewNop())
	_, _, err := p.CallStreamAPI(context.Background(),
		newRequest(srv.URL, "gemini-3-pro-image-preview", testParams(), nil))

	require.NotNil(t, err)
	assert.Equal(t, types.ErrNoImageData, err.Code)
}
