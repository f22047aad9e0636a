package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sukafon/astrbot-plugin-big-banana/types"
)

// Config 调度核心的完整配置。
type Config struct {
	// Providers 提供商列表，顺序即默认调度顺序。
	Providers []types.ProviderConfig `yaml:"providers"`
	// Prompt 生成参数的预设层默认值。
	Prompt types.PromptConfig `yaml:"prompt_defaults"`
	// Common 常规配置。
	Common types.CommonConfig `yaml:"common"`
	// VertexAnonymous Vertex AI Anonymous 专属配置。
	VertexAnonymous types.VertexAnonymousConfig `yaml:"vertex_ai_anonymous"`
	// ReferImagesDir 参考图片文件目录。
	ReferImagesDir string `yaml:"refer_images_dir"`
	// Log 日志配置。
	Log LogConfig `yaml:"log"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level string `yaml:"level"`
}

// Loader 配置加载器。
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("BANANA").
//	    Load()
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader 创建配置加载器。
func NewLoader() *Loader {
	return &Loader{envPrefix: "BANANA"}
}

// WithConfigPath 指定 YAML 配置文件路径。
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 指定环境变量前缀。
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load 按 默认值 → YAML → 环境变量 的顺序装载配置并校验。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", l.configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", l.configPath, err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 用环境变量覆盖标量配置项。
func (l *Loader) applyEnv(cfg *Config) {
	if v, ok := l.env("PROXY"); ok {
		cfg.Common.Proxy = v
	}
	if v, ok := l.env("TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Common.TimeoutSeconds = d.Seconds()
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Common.TimeoutSeconds = f
		}
	}
	if v, ok := l.env("MAX_RETRY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Common.MaxRetry = n
		}
	}
	if v, ok := l.env("SMART_RETRY"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Common.SmartRetry = b
		}
	}
	if v, ok := l.env("REFER_IMAGES_DIR"); ok {
		cfg.ReferImagesDir = v
	}
	if v, ok := l.env("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
}

func (l *Loader) env(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

// Validate 校验配置并填充按类型推导的默认值。
// 配置错误在这里快速失败，不会进入重试循环。
func (c *Config) Validate() error {
	if c.Common.MaxRetry < 1 {
		return types.NewError(types.ErrInvalidConfig, "common.max_retry 必须大于等于 1")
	}
	if c.Common.TimeoutSeconds <= 0 {
		return types.NewError(types.ErrInvalidConfig, "common.timeout 必须大于 0")
	}
	if c.VertexAnonymous.MaxRetry < 1 {
		c.VertexAnonymous.MaxRetry = DefaultVertexMaxRetry
	}
	if c.VertexAnonymous.BaseAPI == "" {
		c.VertexAnonymous.BaseAPI = DefaultVertexAnonymousAPIURL
	}
	if c.VertexAnonymous.RecaptchaBaseAPI == "" {
		c.VertexAnonymous.RecaptchaBaseAPI = DefaultRecaptchaBaseAPI
	}
	if c.Prompt.MaxImages < c.Prompt.MinImages {
		return types.NewError(types.ErrInvalidConfig, "prompt_defaults.max_images 不能小于 min_images")
	}

	seen := make(map[string]struct{}, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.APIName == "" {
			return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("providers[%d].api_name 不能为空", i))
		}
		if _, dup := seen[p.APIName]; dup {
			return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("提供商名称重复: %s", p.APIName))
		}
		seen[p.APIName] = struct{}{}

		if !p.APIType.Valid() {
			return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("提供商 %s 的 api_type 未知: %s", p.APIName, p.APIType))
		}
		if p.Model == "" {
			p.Model = DefaultModel
		}
		if p.APIURL == "" {
			switch p.APIType {
			case types.APITypeGemini:
				p.APIURL = DefaultGeminiAPIURL
			case types.APITypeOpenAIChat:
				p.APIURL = DefaultOpenAIAPIURL
			case types.APITypeVertexAnonymous:
				p.APIURL = DefaultVertexAnonymousAPIURL
			}
		}
		// 匿名端点不需要 Key，其余类型启用时必须配置
		if p.Enabled && p.APIType != types.APITypeVertexAnonymous && len(p.Keys) == 0 {
			return types.NewError(types.ErrNoAPIKey, fmt.Sprintf("提供商 %s 已启用但未配置 API Key", p.APIName))
		}
	}
	return nil
}

// EnabledProviders 返回默认启用的提供商名称，保持配置顺序。
func (c *Config) EnabledProviders() []string {
	var names []string
	for i := range c.Providers {
		if c.Providers[i].Enabled {
			names = append(names, c.Providers[i].APIName)
		}
	}
	return names
}

// ProviderByName 按名称查找提供商配置，未找到返回 nil。
func (c *Config) ProviderByName(name string) *types.ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].APIName == name {
			return &c.Providers[i]
		}
	}
	return nil
}
