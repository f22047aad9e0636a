// Package types 定义图片生成调度核心的共享数据模型：
// 规范图片载荷、请求参数、提供商配置、状态信号与统一错误类型。
package types
