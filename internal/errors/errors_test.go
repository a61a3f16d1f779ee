package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedConstructorsAndPredicates(t *testing.T) {
	assert.True(t, IsMissingCredential(NewMissingCredentialError("openai")))
	assert.True(t, IsUnsupportedProvider(NewUnsupportedProviderError("nope")))
	assert.True(t, IsProviderRequestFailed(NewProviderRequestError("openai", 500, "boom", nil)))
	assert.True(t, IsMalformedResponse(NewMalformedResponseError("bad json", "{", nil)))
	assert.False(t, IsMalformedResponse(NewMissingCredentialError("openai")))
	assert.False(t, IsMissingCredential(stderrors.New("plain")))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	base := NewProviderRequestError("anthropic", 401, "invalid x-api-key", nil)
	wrapped := fmt.Errorf("start: %w", base)

	assert.True(t, IsProviderRequestFailed(wrapped))
	assert.True(t, IsAuthFailure(wrapped))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "anthropic", appErr.Provider)
	assert.Equal(t, "PROVIDER_REQUEST_FAILED", appErr.Code)
}

func TestIsAuthFailureOnlyForCredentialStatuses(t *testing.T) {
	assert.True(t, IsAuthFailure(NewProviderRequestError("x", 403, "forbidden", nil)))
	assert.False(t, IsAuthFailure(NewProviderRequestError("x", 429, "slow down", nil)))
	assert.False(t, IsAuthFailure(NewProviderRequestError("x", 0, "dial tcp", nil)))
	assert.False(t, IsAuthFailure(NewValidationError("nope", nil)))
}

func TestPreviewIsBounded(t *testing.T) {
	long := strings.Repeat("界", MaxPreviewLength+50)
	e := NewMalformedResponseError("bad", long, nil)
	assert.Equal(t, MaxPreviewLength, len([]rune(e.Preview)))

	short := "not json"
	assert.Equal(t, short, NewMalformedResponseError("bad", short, nil).Preview)
}

func TestWrapErrorKeepsType(t *testing.T) {
	err := WrapError(NewMissingCredentialError("mistral"), "failed to start game", ErrorTypeInternal)
	assert.True(t, IsMissingCredential(err))
	assert.Contains(t, err.Error(), "failed to start game")

	plain := WrapError(stderrors.New("disk"), "oops", ErrorTypeInternal)
	appErr, ok := As(plain)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeInternal, appErr.Type)

	assert.Nil(t, WrapError(nil, "x", ErrorTypeInternal))
}
