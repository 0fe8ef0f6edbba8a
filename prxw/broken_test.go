package prxw_test

import (
	"testing"

	"github.com/gordian-engine/pgm/prxw"
	"github.com/gordian-engine/pgm/prxw/prxwtest"
	"github.com/stretchr/testify/require"
)

func TestWindow_broken(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(16))

	require.Equal(t, prxw.ResultAppended, f.Add(t, f.Packet(t, 0, []byte("a"))))
	require.Equal(t, prxw.ResultMissing, f.Add(t, f.Packet(t, 2, []byte("c"))))

	brokenErr := f.W.Break("test failure")
	var ive *prxw.InvariantViolationError
	require.ErrorAs(t, brokenErr, &ive)
	require.Contains(t, ive.Msg, "test failure")

	// Mutators report the same error.
	_, err := f.W.Add(f.Packet(t, 3, []byte("d")), f.Now, f.Now)
	require.ErrorIs(t, err, brokenErr)
	_, err = f.W.Read(nil)
	require.ErrorIs(t, err, brokenErr)
	_, err = f.W.Update(5, 0, f.Now, f.Now)
	require.ErrorIs(t, err, brokenErr)
	require.ErrorIs(t, f.W.RemoveCommit(), brokenErr)

	require.False(t, f.W.MarkLost(1))
	require.False(t, f.W.SetWaitNCF(1, f.Now))
	require.False(t, f.W.SetWaitData(1, f.Now))
	require.False(t, f.W.SetBackoff(1, f.Now))

	// Inspection reports nothing rather than panicking.
	_, ok := f.W.State(0)
	require.False(t, ok)
	_, ok = f.W.Retries(1)
	require.False(t, ok)
	_, bs := f.W.Select(prxw.StateBackOff)
	require.Zero(t, bs.Count())
	_, ok = f.W.TransmissionGroup(0)
	require.False(t, ok)
}
