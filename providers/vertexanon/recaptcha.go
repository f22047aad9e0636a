package vertexanon

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sukafon/astrbot-plugin-big-banana/observability"
	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// reCAPTCHA Enterprise 参数，取自 Cloud Console 页面本身。
const (
	recaptchaSiteKey = "6LdCjtspAAAAAMcV4TGdWLJqRTEk1TfpdLqEnKdj"
	recaptchaV       = "jdMmXeCQEkPbnFDy9T04NbgJ"
	recaptchaCo      = "aHR0cHM6Ly9jb25zb2xlLmNsb3VkLmdvb2dsZS5jb206NDQz"
	recaptchaHl      = "zh-CN"
	recaptchaVh      = "6581054572"

	tokenExchangeAttempts = 3
)

// rrespRe 从 reload 响应里提取最终令牌。
var rrespRe = regexp.MustCompile(`rresp","(.*?)"`)

const lowerAlnum = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = lowerAlnum[rand.Intn(len(lowerAlnum))]
	}
	return string(b)
}

// fetchRecaptchaToken 获取一个可用的 reCAPTCHA 令牌，最多尝试
// tokenExchangeAttempts 次。
func (p *Provider) fetchRecaptchaToken(ctx context.Context) (string, *types.Error) {
	for i := 0; i < tokenExchangeAttempts; i++ {
		if ctx.Err() != nil {
			return "", types.NewError(types.ErrCancelled, "图片生成已取消").WithCause(ctx.Err())
		}
		token, err := p.exchangeToken(ctx)
		if err == nil && token != "" {
			p.logger.Info("获取 recaptcha_token 成功")
			observability.ObserveRecaptchaExchange(true)
			return token, nil
		}
		observability.ObserveRecaptchaExchange(false)
		p.logger.Warn("获取 recaptcha_token 失败，重试中...", zap.Error(err))
	}
	return "", types.NewError(types.ErrRecaptchaFailed, "获取 recaptcha_token 失败")
}

// exchangeToken 执行一次 anchor → reload 两段式令牌交换。
func (p *Provider) exchangeToken(ctx context.Context) (string, error) {
	base := strings.TrimRight(p.cfg.RecaptchaBaseAPI, "/")
	anchorURL := fmt.Sprintf(
		"%s/recaptcha/enterprise/anchor?ar=1&k=%s&co=%s&hl=%s&v=%s&size=invisible&anchor-ms=20000&execute-ms=15000&cb=%s",
		base, recaptchaSiteKey, recaptchaCo, recaptchaHl, recaptchaV, randomString(10))
	reloadURL := fmt.Sprintf("%s/recaptcha/enterprise/reload?k=%s", base, recaptchaSiteKey)

	baseToken, err := p.fetchAnchorToken(ctx, anchorURL)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"v":      {recaptchaV},
		"reason": {"q"},
		"k":      {recaptchaSiteKey},
		"c":      {baseToken},
		"co":     {recaptchaCo},
		"hl":     {recaptchaHl},
		"size":   {"invisible"},
		"vh":     {recaptchaVh},
		"chr":    {""},
		"bg":     {""},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reloadURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	m := rrespRe.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("reload 响应中未找到 rresp")
	}
	return string(m[1]), nil
}

// fetchAnchorToken 拉取 anchor 页面并抽出 id=recaptcha-token
// 的 input 元素值。
func (p *Provider) fetchAnchorToken(ctx context.Context, anchorURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, anchorURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", err
	}
	token := findInputValue(doc, "recaptcha-token")
	if token == "" {
		return "", fmt.Errorf("anchor 页面未找到 recaptcha-token 元素")
	}
	return token, nil
}

// findInputValue 深度优先查找指定 id 的 input 元素的 value 属性。
func findInputValue(n *html.Node, id string) string {
	if n.Type == html.ElementNode && n.Data == "input" {
		var elemID, value string
		for _, attr := range n.Attr {
			switch attr.Key {
			case "id":
				elemID = attr.Val
			case "value":
				value = attr.Val
			}
		}
		if elemID == id {
			return value
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if v := findInputValue(c, id); v != "" {
			return v
		}
	}
	return ""
}
