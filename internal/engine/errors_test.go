package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nostrstore/nostrstore/internal/event"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := newError(CodeNotFound, nil, "note %d", 4)
	wrapped := fmt.Errorf("lookup: %w", err)

	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrBusy)
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := newError(CodeOpenFailed, cause, "open %s", "/tmp/db")

	assert.Contains(t, err.Error(), string(CodeOpenFailed))
	assert.Contains(t, err.Error(), "/tmp/db")
	assert.Contains(t, err.Error(), "disk full")
	assert.ErrorIs(t, err, cause)
}

func TestRejected_CarriesReason(t *testing.T) {
	cause := &event.RejectError{Reason: event.ReasonSignatureInvalid, Message: "bad sig"}
	err := rejected(cause)

	assert.True(t, IsRejected(err))
	assert.Equal(t, event.ReasonSignatureInvalid, ReasonOf(err))
	assert.Contains(t, err.Error(), string(event.ReasonSignatureInvalid))
	assert.Equal(t, event.Reason(""), ReasonOf(errors.New("plain")))
}
