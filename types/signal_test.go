package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusSignal_DistinctNamespaces(t *testing.T) {
	// HTTP 500 与 Vertex 内部码 500 必须是不同的信号
	var httpSig StatusSignal = HTTPStatus(500)
	var vertexSig StatusSignal = VertexCode(500)

	_, isHTTP := vertexSig.(HTTPStatus)
	assert.False(t, isHTTP)

	_, isVertex := httpSig.(VertexCode)
	assert.False(t, isVertex)

	assert.NotEqual(t, httpSig.String(), vertexSig.String())
}

func TestVertexCode_Constants(t *testing.T) {
	assert.Equal(t, VertexCode(3), VertexCodeTokenExpired)
	assert.Equal(t, VertexCode(8), VertexCodeResourceExhausted)
	assert.Equal(t, VertexCode(999), VertexCodeContentBlocked)
}

func TestAPIType_Valid(t *testing.T) {
	assert.True(t, APITypeGemini.Valid())
	assert.True(t, APITypeOpenAIChat.Valid())
	assert.True(t, APITypeVertexAnonymous.Valid())
	assert.False(t, APIType("Midjourney").Valid())
	assert.False(t, APIType("").Valid())
}
