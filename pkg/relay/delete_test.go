package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPropagator(dc DiscordPort, qq QQPort, correlate Correlator, echo *EchoSet) *Propagator {
	p := NewPropagator(dc, qq, correlate, echo, nopLogger())
	p.RetryDelay = time.Millisecond
	return p
}

func TestPropagateQQDeleteCascades(t *testing.T) {
	dc := newFakeDiscord()
	correlate := newMemCorrelator()
	require.NoError(t, correlate.Record("qq1", "dc-a"))
	require.NoError(t, correlate.Record("qq1", "dc-b"))
	echo := NewEchoSet(time.Minute)

	p := fastPropagator(dc, newFakeQQ(), correlate, echo)
	require.NoError(t, p.PropagateQQDelete(context.Background(), testLink(), "qq1"))

	assert.Equal(t, []string{"dc-a", "dc-b"}, dc.deleted)
	assert.Equal(t, 0, correlate.rows(), "all rows for the source are removed")

	// Both targets were marked so their echo events get swallowed.
	assert.True(t, echo.ConsumeJustDeleted("dc-a"))
	assert.True(t, echo.ConsumeJustDeleted("dc-b"))
}

func TestPropagateQQDeleteOfRelayedCopyCascadesBack(t *testing.T) {
	dc := newFakeDiscord()
	correlate := newMemCorrelator()
	// qq5 is the relayed copy of Discord original dc0.
	require.NoError(t, correlate.Record("dc0", "qq5"))
	echo := NewEchoSet(time.Minute)

	p := fastPropagator(dc, newFakeQQ(), correlate, echo)
	require.NoError(t, p.PropagateQQDelete(context.Background(), testLink(), "qq5"))

	assert.Equal(t, []string{"dc0"}, dc.deleted, "deleting the copy removes the original")
	assert.Equal(t, 0, correlate.rows())
}

func TestPropagateDiscordDeleteCascades(t *testing.T) {
	qq := newFakeQQ()
	correlate := newMemCorrelator()
	require.NoError(t, correlate.Record("dc1", "qq-a"))
	require.NoError(t, correlate.Record("dc1", "qq-b"))
	echo := NewEchoSet(time.Minute)

	p := fastPropagator(newFakeDiscord(), qq, correlate, echo)
	require.NoError(t, p.PropagateDiscordDelete(context.Background(), testLink(), "dc1"))

	assert.Equal(t, []string{"qq-a", "qq-b"}, qq.deleted)
	assert.Equal(t, 0, correlate.rows())
	assert.True(t, echo.ConsumeJustDeleted("qq-a"))
	assert.True(t, echo.ConsumeJustDeleted("qq-b"))
}

func TestPropagateDeleteRetriesTransient(t *testing.T) {
	dc := newFakeDiscord()
	dc.deleteErrs = []error{Transient(errors.New("503"))}
	correlate := newMemCorrelator()
	require.NoError(t, correlate.Record("qq1", "dc-a"))

	p := fastPropagator(dc, newFakeQQ(), correlate, NewEchoSet(time.Minute))
	require.NoError(t, p.PropagateQQDelete(context.Background(), testLink(), "qq1"))

	assert.Equal(t, []string{"dc-a"}, dc.deleted)
	assert.Equal(t, 0, correlate.rows())
}

func TestPropagateDeleteExhaustedRetriesKeepCompletedRows(t *testing.T) {
	dc := newFakeDiscord()
	correlate := newMemCorrelator()
	require.NoError(t, correlate.Record("qq1", "dc-a"))
	require.NoError(t, correlate.Record("qq1", "dc-b"))

	p := fastPropagator(dc, newFakeQQ(), correlate, NewEchoSet(time.Minute))

	// First target deletes fine; the second keeps failing.
	dc.deleteErrs = []error{
		nil,
		Transient(errors.New("boom")),
		Transient(errors.New("boom")),
		Transient(errors.New("boom")),
	}
	err := p.PropagateQQDelete(context.Background(), testLink(), "qq1")
	require.Error(t, err)

	assert.Equal(t, []string{"dc-a"}, dc.deleted)
	// dc-a's row is gone; dc-b's row survives for a later retry.
	src, ok, _ := correlate.SourceFor("dc-b")
	assert.True(t, ok)
	assert.Equal(t, "qq1", src)
	_, ok, _ = correlate.SourceFor("dc-a")
	assert.False(t, ok)
}

func TestPropagateDeleteUnknownMessageIsNoop(t *testing.T) {
	dc := newFakeDiscord()
	p := fastPropagator(dc, newFakeQQ(), newMemCorrelator(), NewEchoSet(time.Minute))

	require.NoError(t, p.PropagateQQDelete(context.Background(), testLink(), "never-seen"))
	assert.Empty(t, dc.deleted)
}
