package cmd

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openswoop/rosterwatch/pkg/app"
	"github.com/openswoop/rosterwatch/pkg/canvas"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitPartial, exitCode(fmt.Errorf("%w: 2 of 10 courses", app.ErrPartialFetch)))
	assert.Equal(t, exitFatal, exitCode(&app.PersistenceError{Phase: app.PhaseChanges, Err: errors.New("locked")}))
	assert.Equal(t, exitFatal, exitCode(fmt.Errorf("failed to list courses: %w", &canvas.AuthError{StatusCode: 401})))
}

func TestParseSince(t *testing.T) {
	from, err := parseSince("")
	require.NoError(t, err)
	assert.True(t, from.IsZero())

	from, err = parseSince("2024-09-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC), from)

	from, err = parseSince("2024-09-01T12:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 12, from.Hour())

	_, err = parseSince("last week")
	assert.Error(t, err)
}
