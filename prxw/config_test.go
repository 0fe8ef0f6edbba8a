package prxw_test

import (
	"strings"
	"testing"
	"time"

	"github.com/gordian-engine/pgm/internal/ptest"
	"github.com/gordian-engine/pgm/prxw"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()

	t.Run("rate based", func(t *testing.T) {
		t.Parallel()

		cfg, err := prxw.ParseConfig([]byte(`
max_tpdu: 1500
duration: 10s
max_rate: 400000
`))
		require.NoError(t, err)
		require.Equal(t, prxw.Config{
			MaxTPDU:  1500,
			Duration: 10 * time.Second,
			MaxRate:  400000,
		}, cfg)

		w, err := prxw.New(ptest.NewLogger(t), cfg)
		require.NoError(t, err)
		require.Equal(t, 2666, w.Stats().Capacity)
		require.False(t, w.Stats().Defined)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cfg, err := prxw.LoadConfig(strings.NewReader("sqns: 128\n"))
		require.NoError(t, err)
		require.Equal(t, 1500, cfg.MaxTPDU)
		require.Equal(t, 128, cfg.Sqns)
	})

	t.Run("transmission groups", func(t *testing.T) {
		t.Parallel()

		cfg, err := prxw.ParseConfig([]byte(`
sqns: 64
transmission_group_size: 8
parity_count: 2
`))
		require.NoError(t, err)

		w, err := prxw.New(ptest.NewLogger(t), cfg)
		require.NoError(t, err)
		require.True(t, w.FECAvailable())
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()

		_, err := prxw.ParseConfig([]byte("sqns: 64\nwindow: 3\n"))
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		// Defaults alone do not size the window.
		_, err := prxw.ParseConfig(nil)
		require.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		cfg  prxw.Config
		ok   bool
	}{
		{name: "sqns", cfg: prxw.Config{MaxTPDU: 1500, Sqns: 1}, ok: true},
		{name: "zero tpdu", cfg: prxw.Config{Sqns: 16}},
		{name: "huge tpdu", cfg: prxw.Config{MaxTPDU: 1 << 16, Sqns: 16}},
		{name: "negative sqns", cfg: prxw.Config{MaxTPDU: 1500, Sqns: -1}},
		{name: "missing rate", cfg: prxw.Config{MaxTPDU: 1500, Duration: time.Second}},
		{name: "missing duration", cfg: prxw.Config{MaxTPDU: 1500, MaxRate: 1500}},
		{
			name: "rate too low for one packet",
			cfg:  prxw.Config{MaxTPDU: 1500, Duration: time.Second, MaxRate: 1000},
		},
		{name: "too large", cfg: prxw.Config{MaxTPDU: 1500, Sqns: 1 << 30}},
		{name: "negative group", cfg: prxw.Config{MaxTPDU: 1500, Sqns: 16, TransmissionGroupSize: -1}},
		{name: "negative parity", cfg: prxw.Config{MaxTPDU: 1500, Sqns: 16, ParityCount: -1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestNew_invalidFEC(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name          string
		group, parity int
	}{
		{name: "not power of two", group: 3, parity: 1},
		{name: "no parity", group: 4, parity: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := smallConfig(16)
			cfg.TransmissionGroupSize = tc.group
			cfg.ParityCount = tc.parity

			_, err := prxw.New(ptest.NewLogger(t), cfg)
			require.Error(t, err)
		})
	}
}

func TestResult_String(t *testing.T) {
	t.Parallel()

	require.True(t, prxw.ResultInserted.Consumed())
	require.True(t, prxw.ResultAppended.Consumed())
	require.True(t, prxw.ResultMissing.Consumed())
	require.False(t, prxw.ResultDuplicate.Consumed())
	require.False(t, prxw.ResultMalformed.Consumed())
	require.False(t, prxw.ResultBounds.Consumed())

	require.NotEqual(t, prxw.ResultMissing.String(), prxw.ResultBounds.String())
}

func TestInvariantViolationError(t *testing.T) {
	t.Parallel()

	err := &prxw.InvariantViolationError{Msg: "slot mismatch"}
	require.Contains(t, err.Error(), "BUG:")
	require.Contains(t, err.Error(), "slot mismatch")
}
