package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/bronto-tap/pkg/catalog"
)

func TestStartDate(t *testing.T) {
	now := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	defaultStart := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * 24 * time.Hour)

	activity := StartPolicy{Rewind: 3 * 24 * time.Hour, Retention: 30 * 24 * time.Hour}

	tests := []struct {
		name   string
		policy StartPolicy
		in     StartInput
		want   time.Time
	}{
		{
			name: "incremental without bookmark uses default",
			in:   StartInput{Replication: catalog.ReplicationIncremental, DefaultStart: defaultStart, Now: now},
			want: defaultStart,
		},
		{
			name: "incremental resumes from bookmark",
			in:   StartInput{Replication: catalog.ReplicationIncremental, Bookmark: recent, HasBookmark: true, DefaultStart: defaultStart, Now: now},
			want: recent,
		},
		{
			name: "full table ignores bookmark",
			in:   StartInput{Replication: catalog.ReplicationFullTable, Bookmark: recent, HasBookmark: true, DefaultStart: defaultStart, Now: now},
			want: defaultStart,
		},
		{
			name:   "activity rewinds bookmark",
			policy: activity,
			in:     StartInput{Replication: catalog.ReplicationIncremental, Bookmark: recent, HasBookmark: true, DefaultStart: defaultStart, Now: now},
			want:   recent.Add(-3 * 24 * time.Hour),
		},
		{
			name:   "activity rewind clamped to retention",
			policy: activity,
			in:     StartInput{Replication: catalog.ReplicationIncremental, Bookmark: now.Add(-29 * 24 * time.Hour), HasBookmark: true, DefaultStart: defaultStart, Now: now},
			want:   now.Add(-30 * 24 * time.Hour),
		},
		{
			name:   "activity first sync clamped to retention",
			policy: activity,
			in:     StartInput{Replication: catalog.ReplicationIncremental, DefaultStart: defaultStart, Now: now},
			want:   now.Add(-30 * 24 * time.Hour),
		},
		{
			name:   "activity full table clamped, not rewound",
			policy: activity,
			in:     StartInput{Replication: catalog.ReplicationFullTable, Bookmark: recent, HasBookmark: true, DefaultStart: now.Add(-10 * 24 * time.Hour), Now: now},
			want:   now.Add(-10 * 24 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.StartDate(tt.in, nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStartDate_LogsClamp(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	now := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)

	policy := StartPolicy{Rewind: 72 * time.Hour, Retention: 30 * 24 * time.Hour}
	policy.StartDate(StartInput{
		Stream:       "outbound_activity",
		Replication:  catalog.ReplicationIncremental,
		DefaultStart: now.AddDate(-1, 0, 0),
		Now:          now,
	}, zap.New(core))

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "outbound_activity", warnings[0].ContextMap()["stream"])
}
