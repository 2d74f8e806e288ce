package syncer_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-rollcall/internal/clock/clockfake"
	"github.com/jrsteele09/go-rollcall/syncer"
	"github.com/stretchr/testify/require"
)

func TestBoard(t *testing.T) {
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	board := syncer.NewBoard(2, clockfake.New(now))

	board.Notify(syncer.Notice{Level: syncer.LevelError, Message: "one"})
	board.Notify(syncer.Notice{Level: syncer.LevelInfo, Message: "two"})
	board.Notify(syncer.Notice{Level: syncer.LevelInfo, Message: "three"})

	notices := board.List()
	require.Len(t, notices, 2)
	require.Equal(t, "two", notices[0].Message)
	require.Equal(t, "three", notices[1].Message)
	require.Equal(t, now, notices[0].Time)
	require.NotEqual(t, notices[0].ID, notices[1].ID)

	require.True(t, board.Dismiss(notices[0].ID))
	require.False(t, board.Dismiss(notices[0].ID))
	require.Len(t, board.List(), 1)
}
