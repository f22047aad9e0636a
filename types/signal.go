package types

import "fmt"

// StatusSignal 一次适配器调用的状态信号，重试引擎据此判断
// 重试或放弃。这是一个封闭和类型：HTTP 状态码与 Vertex 内部
// 错误码是两个独立的编号空间，不允许混用 —— HTTP 500 与
// 提供商内部代码 500 不是同一个东西。
type StatusSignal interface {
	fmt.Stringer
	statusSignal()
}

// HTTPStatus 上游 HTTP 状态码信号（Gemini / OpenAI-Chat 适配器）。
type HTTPStatus int

func (HTTPStatus) statusSignal() {}

func (s HTTPStatus) String() string { return fmt.Sprintf("http %d", int(s)) }

// VertexCode Vertex AI Anonymous 后端的内部错误码信号，
// 与 HTTP 状态无关。
type VertexCode int

const (
	// VertexCodeTokenExpired token 失效或参数错误，换取新 token 后可重试。
	VertexCodeTokenExpired VertexCode = 3
	// VertexCodeResourceExhausted 资源耗尽，直接重试。
	VertexCodeResourceExhausted VertexCode = 8
	// VertexCodeContentBlocked 内容安全拦截的内部哨兵值，重试无意义。
	VertexCodeContentBlocked VertexCode = 999
)

func (VertexCode) statusSignal() {}

func (c VertexCode) String() string { return fmt.Sprintf("vertex code %d", int(c)) }
