package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstrand/matchpoint/internal/event"
	"github.com/sstrand/matchpoint/internal/syncproto"
)

func TestClientSeedsFromDurableContext(t *testing.T) {
	ctrl, ts := newTestRelay(t)

	require.NoError(t, ctrl.StartMatch("friendly", "Anna", "Bjorn"))
	require.NoError(t, ctrl.ScorePoint(event.PlayerOne))
	require.NoError(t, ctrl.ScorePoint(event.PlayerOne))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(ts.URL)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	// The durable slot is read synchronously during Connect, before
	// the live channel delivers anything.
	snap := c.Session().Cached()
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.PlayerOneScore)
	assert.Equal(t, "Anna", snap.PlayerOneName)
}

func TestClientScoreCommandRoundTrip(t *testing.T) {
	ctrl, ts := newTestRelay(t)

	require.NoError(t, ctrl.StartMatch("friendly", "Anna", "Bjorn"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(ts.URL)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.SendCommand(ctx, syncproto.CmdIncrementP1))

	require.Eventually(t, func() bool {
		snap := c.Session().Cached()
		return c.Session().Idle() && snap != nil && snap.PlayerOneScore == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClientHighlightFastPath(t *testing.T) {
	ctrl, ts := newTestRelay(t)

	require.NoError(t, ctrl.StartMatch("friendly", "Anna", "Bjorn"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(ts.URL)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.SendCommand(ctx, syncproto.CmdHighlight))

	require.Eventually(t, func() bool {
		snap := c.Session().Cached()
		return c.Session().Idle() && snap != nil && snap.HasPendingHighlight
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClientRejectsSecondActionInFlight(t *testing.T) {
	// No connection: the first send fails silently but the slot stays
	// claimed until its timeout.
	c := NewClient("http://127.0.0.1:0", syncproto.WithTimeout(time.Hour))

	ctx := context.Background()
	require.NoError(t, c.SendCommand(ctx, syncproto.CmdIncrementP1))

	err := c.SendCommand(ctx, syncproto.CmdIncrementP2)
	assert.ErrorIs(t, err, syncproto.ErrActionInFlight)
}

func TestClientRequestSyncTakesNoSlot(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", syncproto.WithTimeout(time.Hour))

	ctx := context.Background()
	require.NoError(t, c.SendCommand(ctx, syncproto.CmdRequestSync))
	assert.True(t, c.Session().Idle())

	require.NoError(t, c.SendCommand(ctx, syncproto.CmdIncrementP1))
	assert.False(t, c.Session().Idle())
}

func TestClientConnectDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c := NewClient("http://127.0.0.1:1")
	err := c.Connect(ctx)
	assert.Error(t, err)
	assert.Nil(t, c.Session().Cached())
}
