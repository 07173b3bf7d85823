package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPlan_GaplessAndMonotonic(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		interval time.Duration
		now      time.Time
		want     int
	}{
		{"exact multiple", base, 6 * time.Hour, base.Add(24 * time.Hour), 4},
		{"partial last window", base, 6 * time.Hour, base.Add(25 * time.Hour), 5},
		{"single window", base, time.Hour, base.Add(time.Minute), 1},
		{"start at now", base, time.Hour, base, 0},
		{"start after now", base.Add(time.Hour), time.Hour, base, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := Plan(tt.start, tt.interval, tt.now)
			require.Len(t, windows, tt.want)
			if tt.want == 0 {
				return
			}

			assert.Equal(t, tt.start, windows[0].Start)
			for i, w := range windows {
				assert.True(t, w.End.After(w.Start))
				assert.Equal(t, tt.interval, w.Duration())
				if i > 0 {
					assert.Equal(t, windows[i-1].End, w.Start, "gap before window %d", i)
				}
			}

			last := windows[len(windows)-1]
			assert.False(t, last.End.Before(tt.now), "last window must reach now")
			assert.True(t, last.Start.Before(tt.now), "no window starts at or after now")
		})
	}
}

func TestIterator_ReadsClockEachWindow(t *testing.T) {
	now := base.Add(2 * time.Hour)
	calls := 0
	it := NewIterator(base, time.Hour, func() time.Time {
		calls++
		return now
	})

	require.True(t, it.Next())
	assert.Equal(t, Window{Start: base, End: base.Add(time.Hour)}, it.Window())

	// the clock moves while the first windows are processed
	now = base.Add(3 * time.Hour)
	require.True(t, it.Next())
	require.True(t, it.Next())
	assert.Equal(t, base.Add(3*time.Hour), it.Window().End)
	assert.False(t, it.Next())
	assert.Equal(t, 4, calls)
}

func TestNewIterator_RejectsNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { NewIterator(base, 0, nil) })
}

func TestWindow_Contains(t *testing.T) {
	w := Window{Start: base, End: base.Add(time.Hour)}
	assert.True(t, w.Contains(base))
	assert.True(t, w.Contains(base.Add(59*time.Minute)))
	assert.False(t, w.Contains(base.Add(time.Hour)))
	assert.False(t, w.Contains(base.Add(-time.Second)))
	assert.Equal(t, "[2020-01-01T00:00:00Z, 2020-01-01T01:00:00Z)", w.String())
}
