package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestIsObjectNotFound(t *testing.T) {
	err := NewObjectNotFoundError("foo", fmt.Errorf("bar"))
	require.True(t, IsObjectNotFound(err))
	require.True(t, IsUnretriable(err))
	var permErr *backoff.PermanentError
	require.False(t, errors.As(err, &permErr))
}

func TestUnretriable(t *testing.T) {
	err := Unretriable(fmt.Errorf("bar"))
	require.True(t, IsUnretriable(err))
	var permErr *backoff.PermanentError
	require.True(t, errors.As(err, &permErr))
}

func TestGateError(t *testing.T) {
	err := NewGateError(GateQuality, "retention below threshold", map[string]interface{}{"retention_score": 41})
	var wrapped error = fmt.Errorf("pipeline step failed: %w", err)
	g, ok := AsGateError(wrapped)
	require.True(t, ok)
	require.Equal(t, GateQuality, g.Kind)
	require.Equal(t, "FAILED_QUALITY_GATE: retention below threshold", g.Error())
}

func TestInvalidStatusTransition(t *testing.T) {
	require.EqualError(t, InvalidStatusTransition("queued", "rendering"), "invalid_status_transition:queued->rendering")
}

func TestEditedRenderFailed(t *testing.T) {
	err := EditedRenderFailed("xfade_unsupported")
	require.True(t, errors.Is(err, ErrRenderFailed))
	require.Contains(t, err.Error(), "edited_render_failed:xfade_unsupported")
}
