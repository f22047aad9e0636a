// Package config 负责配置装载与参数解析。
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量。
// 生成参数解析优先级: 请求级 → 预设层 → 全局默认，
// 由显式的 ResolveParams 完成，不依赖任何隐式合并顺序。
package config
