package prxw_test

import (
	"testing"

	"github.com/gordian-engine/pgm/internal/ptest"
	"github.com/gordian-engine/pgm/prxw"
	"github.com/gordian-engine/pgm/prxw/prxwtest"
	"github.com/gordian-engine/pgm/pskb"
	"github.com/gordian-engine/pgm/psqn"
	"github.com/stretchr/testify/require"
)

func TestWindow_Read_empty(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(16))

	dst := make([]prxw.APDU, 0, 4)
	got, err := f.W.Read(dst)
	require.NoError(t, err)
	require.Len(t, got, len(dst))
}

func TestWindow_Read_fragmented(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(64))

	apdu := ptest.RandomDataForTest(t, 4000)
	frags := f.Fragments(t, 10, apdu, 1000)
	require.Len(t, frags, 4)

	for _, skb := range frags[:3] {
		require.Equal(t, prxw.ResultAppended, f.Add(t, skb))
	}

	// Running out of fragments is pending, not lost.
	require.Empty(t, f.Read(t))
	s, _ := f.W.State(10)
	require.Equal(t, prxw.StateHaveData, s)

	require.Equal(t, prxw.ResultAppended, f.Add(t, frags[3]))

	got, err := f.W.Read(nil)
	require.NoError(t, err)
	require.Len(t, got, 1)

	a := got[0]
	require.Equal(t, psqn.Sqn(10), a.FirstSqn())
	require.Len(t, a.Fragments, 4)
	require.Equal(t, 4000, a.Length)
	require.Equal(t, apdu, a.Bytes())

	for i := range 4 {
		s, ok := f.W.State(psqn.Sqn(10 + i))
		require.True(t, ok)
		require.Equal(t, prxw.StateCommitData, s)
	}

	st := f.W.Stats()
	require.Equal(t, 4, st.Committed)
	require.Equal(t, psqn.Sqn(14), st.CommitLead)
	require.Equal(t, uint64(4000), st.BytesDelivered)
	require.Equal(t, uint64(1), st.MessagesDelivered)

	require.NoError(t, f.W.RemoveCommit())
	a.Release()
	for _, skb := range frags {
		require.Zero(t, skb.Refs())
	}

	f.RequireInvariants(t)
}

func TestWindow_Read_fragmentedOutOfOrder(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(64))

	apdu := ptest.RandomDataForTest(t, 2500)
	frags := f.Fragments(t, 0, apdu, 1000)
	require.Len(t, frags, 3)

	require.Equal(t, prxw.ResultAppended, f.Add(t, frags[0]))
	require.Equal(t, prxw.ResultMissing, f.Add(t, frags[2]))
	require.Empty(t, f.Read(t))

	require.Equal(t, prxw.ResultInserted, f.Add(t, frags[1]))

	got := f.Read(t)
	require.Len(t, got, 1)
	require.Equal(t, apdu, got[0].Bytes())

	f.RequireInvariants(t)
}

func TestWindow_Read_mixed(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(64))

	single := f.Packet(t, 0, []byte("single"))
	apdu := ptest.RandomDataForTest(t, 300)
	frags := f.Fragments(t, 1, apdu, 100)
	last := f.Packet(t, 4, []byte("last"))

	require.Equal(t, prxw.ResultAppended, f.Add(t, single))
	for _, skb := range frags {
		require.Equal(t, prxw.ResultAppended, f.Add(t, skb))
	}
	require.Equal(t, prxw.ResultAppended, f.Add(t, last))

	got := f.Read(t)
	require.Len(t, got, 3)
	require.Equal(t, []byte("single"), got[0].Bytes())
	require.Equal(t, apdu, got[1].Bytes())
	require.Equal(t, []byte("last"), got[2].Bytes())
}

func TestWindow_Read_tooManyFragments(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(64))

	apdu := ptest.RandomDataForTest(t, (prxw.MaxFragments+1)*100)
	frags := f.Fragments(t, 0, apdu, 100)
	require.Len(t, frags, prxw.MaxFragments+1)

	for _, skb := range frags {
		require.Equal(t, prxw.ResultAppended, f.Add(t, skb))
	}

	got, err := f.W.Read(nil)
	require.NoError(t, err)
	require.Empty(t, got)

	s, _ := f.W.State(0)
	require.Equal(t, prxw.StateLostData, s)

	// The remaining fragments are purged as their APDU is gone.
	require.Empty(t, f.Read(t))

	st := f.W.Stats()
	require.Zero(t, st.Length)
	require.Zero(t, st.MessagesDelivered)
	require.Equal(t, psqn.Sqn(prxw.MaxFragments+1), st.Trail)

	for _, skb := range frags {
		require.Zero(t, skb.Refs())
	}

	f.RequireInvariants(t)
}

func TestWindow_Read_inconsistentFragments(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(64))

	first := f.Fragments(t, 0, ptest.RandomDataForTest(t, 200), 100)
	// Claims the same first sequence number with a different APDU length.
	other := f.Fragments(t, 0, ptest.RandomDataForTest(t, 300), 100)

	require.Equal(t, prxw.ResultAppended, f.Add(t, first[0]))
	require.Equal(t, prxw.ResultAppended, f.Add(t, other[1]))

	got, err := f.W.Read(nil)
	require.NoError(t, err)
	require.Empty(t, got)

	s, _ := f.W.State(0)
	require.Equal(t, prxw.StateLostData, s)
}

func TestWindow_Add_fragmentOfLostAPDU(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(64))

	frags := f.Fragments(t, 0, ptest.RandomDataForTest(t, 300), 100)

	require.Equal(t, prxw.ResultAppended, f.Add(t, frags[0]))
	require.True(t, f.W.MarkLost(0))

	// Appending a later fragment of a lost APDU tracks it as lost.
	require.Equal(t, prxw.ResultBounds, f.Add(t, frags[1]))
	s, ok := f.W.State(1)
	require.True(t, ok)
	require.Equal(t, prxw.StateLostData, s)
	require.Equal(t, 1, frags[1].Refs())

	// Filling a placeholder does the same.
	require.Equal(t, prxw.ResultMissing, f.Add(t, f.Packet(t, 3, []byte("x"))))
	require.Equal(t, prxw.ResultBounds, f.Add(t, frags[2]))
	s, _ = f.W.State(2)
	require.Equal(t, prxw.StateLostData, s)

	got := f.Read(t)
	require.Len(t, got, 1)
	require.Equal(t, []byte("x"), got[0].Bytes())

	f.RequireInvariants(t)
}

func TestWindow_Read_unfragmentedInsideFragmentedAPDU(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(64))

	frags := f.Fragments(t, 0, ptest.RandomDataForTest(t, 3000), 1000)
	plain1 := ptest.RandomDataForTest(t, 500)
	plain2 := ptest.RandomDataForTest(t, 1500)

	require.Equal(t, prxw.ResultAppended, f.Add(t, frags[0]))
	require.Equal(t, prxw.ResultAppended, f.Add(t, f.Packet(t, 1, plain1)))
	require.Equal(t, prxw.ResultAppended, f.Add(t, f.Packet(t, 2, plain2)))

	// The plain packet cannot continue the APDU started at 0.
	got, err := f.W.Read(nil)
	require.NoError(t, err)
	require.Empty(t, got)

	s, _ := f.W.State(0)
	require.Equal(t, prxw.StateLostData, s)

	// The plain packets are still delivered, each on its own.
	got = f.Read(t)
	require.Len(t, got, 2)
	require.Equal(t, psqn.Sqn(1), got[0].FirstSqn())
	require.Equal(t, plain1, got[0].Bytes())
	require.Equal(t, psqn.Sqn(2), got[1].FirstSqn())
	require.Equal(t, plain2, got[1].Bytes())

	// The window remains usable.
	require.Equal(t, prxw.ResultAppended, f.Add(t, f.Packet(t, 3, []byte("x"))))
	require.Len(t, f.Read(t), 1)

	f.RequireInvariants(t)
}

func TestWindow_Read_fragmentOfDeliveredAPDU(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(64))

	apdu := ptest.RandomDataForTest(t, 200)
	frags := f.Fragments(t, 0, apdu, 100)
	// A third fragment claiming the same two-fragment APDU.
	stray := f.Fragments(t, 0, apdu, 100)[1]
	strayRaw := pskb.AppendData(nil, pskb.Header{
		Sqn: 2,
		Fragment: &pskb.FragmentOption{
			FirstSqn:   0,
			Offset:     100,
			APDULength: 200,
		},
	}, stray.Payload())

	require.Equal(t, prxw.ResultAppended, f.Add(t, frags[0]))
	require.Equal(t, prxw.ResultAppended, f.Add(t, frags[1]))
	require.Equal(t, prxw.ResultAppended, f.Add(t, prxwtest.Parse(t, strayRaw)))
	require.Equal(t, prxw.ResultAppended, f.Add(t, f.Packet(t, 3, []byte("next"))))

	got, err := f.W.Read(nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, apdu, got[0].Bytes())

	s, _ := f.W.State(2)
	require.Equal(t, prxw.StateLostData, s)

	rest := f.Read(t)
	require.Len(t, rest, 1)
	require.Equal(t, []byte("next"), rest[0].Bytes())

	f.RequireInvariants(t)
}

func TestWindow_Read_oversizedSinglePacket(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(16))

	skb := f.Packet(t, 0, ptest.RandomDataForTest(t, prxw.MaxAPDU+1))
	require.Equal(t, prxw.ResultAppended, f.Add(t, skb))

	got, err := f.W.Read(nil)
	require.NoError(t, err)
	require.Empty(t, got)

	s, _ := f.W.State(0)
	require.Equal(t, prxw.StateLostData, s)
	require.Equal(t, uint64(1), f.W.CumulativeLosses())

	require.Empty(t, f.Read(t))

	st := f.W.Stats()
	require.Zero(t, st.MessagesDelivered)
	require.Zero(t, st.BytesDelivered)
	require.Zero(t, st.Length)
	require.Equal(t, psqn.Sqn(1), st.Trail)
	require.Zero(t, skb.Refs())

	f.RequireInvariants(t)
}

func TestWindow_Add_repeatedRepairOfLostAPDU(t *testing.T) {
	t.Parallel()

	f := prxwtest.NewFixture(t, smallConfig(64))

	frags := f.Fragments(t, 0, ptest.RandomDataForTest(t, 300), 100)

	require.Equal(t, prxw.ResultAppended, f.Add(t, frags[0]))
	require.Equal(t, prxw.ResultMissing, f.Add(t, frags[2]))
	require.True(t, f.W.MarkLost(0))

	require.Equal(t, prxw.ResultBounds, f.Add(t, frags[1]))
	s, _ := f.W.State(1)
	require.Equal(t, prxw.StateLostData, s)

	losses := f.W.CumulativeLosses()
	f.W.ClearEvent()

	for range 5 {
		repair := prxwtest.Parse(t, pskb.AppendData(nil, pskb.Header{
			Type: pskb.TypeRDATA,
			Sqn:  1,
			Fragment: &pskb.FragmentOption{
				FirstSqn:   0,
				Offset:     100,
				APDULength: 300,
			},
		}, frags[1].Payload()))

		require.Equal(t, prxw.ResultBounds, f.Add(t, repair))
		require.Equal(t, 1, repair.Refs())
	}

	require.Equal(t, losses, f.W.CumulativeLosses())
	require.False(t, f.W.HasEvent())

	f.RequireInvariants(t)
}
