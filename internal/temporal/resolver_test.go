package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow is Monday 2025-03-10 14:30:45 in the reference timezone.
func fixedNow(t *testing.T) (*Resolver, time.Time) {
	t.Helper()
	loc := DefaultLocation()
	now := time.Date(2025, 3, 10, 14, 30, 45, 123, loc)
	return NewResolver(WithNow(func() time.Time { return now }), WithLocation(loc)), now.Truncate(time.Second)
}

func TestResolve(t *testing.T) {
	r, now := fixedNow(t)
	loc := r.Location()
	today := func(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, loc) }
	yesterday := func(h, m int) time.Time { return time.Date(2025, 3, 9, h, m, 0, 0, loc) }

	tests := []struct {
		name     string
		text     string
		want     time.Time
		rule     string
		explicit bool
	}{
		{"just now", "It just now started hurting", now, "just_now", true},
		{"sudden onset", "sudden onset of pain behind my eye", now, "sudden_onset", true},
		{"causal onset", "stress triggered the onset", now, "causal_onset", true},
		{"woke up", "woke up with a splitting headache", today(8, 0), "woke_up", false},
		{"hours ago digits", "2 hours ago, triggered by weather, I started vomiting", now.Add(-2 * time.Hour), "relative_offset", true},
		{"minutes ago words", "about ten minutes ago", now.Add(-10 * time.Minute), "relative_offset", true},
		{"mins before", "started 45 mins before", now.Add(-45 * time.Minute), "relative_offset", true},
		{"since am", "It has been hurting since 7:15 am", today(7, 15), "since", true},
		{"since bare hour", "pain since 16 and it keeps going", today(16, 0), "since", true},
		{"explicit clock this morning", "This morning around 7am I got a migraine", today(7, 0), "clock_ampm", true},
		{"clock with yesterday", "yesterday at 9:30 pm it began", yesterday(21, 30), "clock_ampm", true},
		{"twelve am", "it began at 12am", today(0, 0), "clock_ampm", true},
		{"day part morning", "this morning my head was pounding", today(8, 0), "day_part", false},
		{"afternoon is not noon", "in the afternoon it got worse", today(15, 0), "day_part", false},
		{"last night", "last night the pain was awful", yesterday(22, 0), "day_part", false},
		{"started in the evening", "it started in the evening after work", today(19, 0), "day_part", false},
		{"started this morning", "It started this morning", today(8, 0), "day_part", false},
		{"24h clock", "at 18:45 I felt the aura", today(18, 45), "clock_24h", true},
		{"bare today", "my head hurts today", today(8, 0), "today", false},
		{"bare yesterday", "the one from yesterday is back", yesterday(9, 0), "yesterday", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := r.Resolve(tt.text)
			require.True(t, ok, "expected a match")
			assert.True(t, tt.want.Equal(m.Time), "got %s want %s", m.Time, tt.want)
			assert.Equal(t, tt.rule, m.Rule)
			assert.Equal(t, tt.explicit, m.Explicit)
			assert.Equal(t, loc, m.Time.Location())
		})
	}
}

func TestResolveNoMatch(t *testing.T) {
	r, _ := fixedNow(t)
	for _, text := range []string{
		"",
		"   ",
		"my head hurts a lot",
		"triggered by evening light",
		"since the last appointment",
		"caused by stress today",
	} {
		_, ok := r.Resolve(text)
		assert.False(t, ok, text)
	}
}

func TestParseAmPmRangeGuard(t *testing.T) {
	r, _ := fixedNow(t)
	_, ok := r.Resolve("the score was 45pm on the chart")
	assert.False(t, ok)
}

func TestParseTimestamp(t *testing.T) {
	r, _ := fixedNow(t)
	loc := r.Location()

	got, ok := r.ParseTimestamp("2025-03-10T02:00:00Z")
	require.True(t, ok)
	assert.True(t, time.Date(2025, 3, 10, 7, 30, 0, 0, loc).Equal(got))
	assert.Equal(t, "2025-03-10T07:30:00+05:30", got.Format(time.RFC3339))

	got, ok = r.ParseTimestamp("2025-03-10T08:00:00")
	require.True(t, ok)
	assert.True(t, time.Date(2025, 3, 10, 8, 0, 0, 0, loc).Equal(got))

	got, ok = r.ParseTimestamp("2025-03-09")
	require.True(t, ok)
	assert.True(t, time.Date(2025, 3, 9, 0, 0, 0, 0, loc).Equal(got))

	for _, bad := range []string{"", "relative", "RELATIVE", "last tuesday", "2025-13-40"} {
		_, ok := r.ParseTimestamp(bad)
		assert.False(t, ok, bad)
	}
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, loc.String())

	loc, err = LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	_, err = LoadLocation("Not/AZone")
	assert.Error(t, err)
}
