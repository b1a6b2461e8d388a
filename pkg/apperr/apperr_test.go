package apperr

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOfThroughWrapChain(t *testing.T) {
	base := New(KindLLMUnavailable, "backend down")
	wrapped := errors.Wrap(errors.Wrap(base, "inner"), "outer")
	assert.Equal(t, KindLLMUnavailable, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindLLMUnavailable))
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("anonymous")))
}

func TestStatusAndCodeMapping(t *testing.T) {
	cases := []struct {
		kind   Kind
		code   string
		status int
	}{
		{KindBadRequest, "bad_request", http.StatusBadRequest},
		{KindLLMUnavailable, "llm_unavailable", http.StatusServiceUnavailable},
		{KindLLMGeneration, "llm_generation", http.StatusInternalServerError},
		{KindRateLimited, "rate_limited", http.StatusTooManyRequests},
		{KindInternal, "internal", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.kind.Code())
		assert.Equal(t, tc.status, tc.kind.HTTPStatus())
	}
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(KindInternal, nil, "ignored"))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(KindLLMGeneration, errors.New("boom"), "generate")
	assert.Equal(t, "generate: boom", err.Error())
}
