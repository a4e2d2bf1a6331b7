// Package temporal resolves onset phrases in a transcript ("2 hours ago",
// "since 7am", "last night") to an absolute time in a reference timezone.
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone is the reference timezone used when none is configured.
const DefaultTimezone = "Asia/Kolkata"

// Match is a resolved onset time.
type Match struct {
	Time time.Time
	// Rule names the rule that fired.
	Rule string
	// Explicit is true for clock, relative-offset and "now" rules; false for
	// day-part and bare day defaults.
	Explicit bool
}

// Resolver applies an ordered rule list against a transcript.
// Safe for concurrent use.
type Resolver struct {
	now func() time.Time
	loc *time.Location
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNow injects the clock.
func WithNow(fn func() time.Time) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithLocation sets the reference timezone.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// NewResolver creates a Resolver using the wall clock and DefaultTimezone
// unless overridden.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{now: time.Now, loc: DefaultLocation()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultLocation returns the DefaultTimezone location.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// LoadLocation resolves an IANA name; empty means DefaultTimezone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultLocation(), nil
	}
	return time.LoadLocation(name)
}

// Location returns the reference timezone.
func (r *Resolver) Location() *time.Location { return r.loc }

// Now returns the current time in the reference timezone, truncated to the
// second.
func (r *Resolver) Now() time.Time {
	return r.now().In(r.loc).Truncate(time.Second)
}

// Today returns midnight of the current day in the reference timezone.
func (r *Resolver) Today() time.Time {
	return startOfDay(r.Now())
}

// Resolve returns the onset time named by the transcript, if any rule
// matches. The first matching rule wins.
func (r *Resolver) Resolve(transcript string) (Match, bool) {
	s := newScan(transcript, r.Now())
	if s.text == "" {
		return Match{}, false
	}
	for _, rl := range rules {
		if t, ok := rl.apply(s); ok {
			return Match{Time: t, Rule: rl.name, Explicit: rl.explicit}, true
		}
	}
	return Match{}, false
}

// ParseTimestamp parses an ISO-8601 style timestamp and expresses it in the
// reference timezone. Timestamps without an offset are read as reference
// local time. The "relative" placeholder and anything unparseable report
// false.
func (r *Resolver) ParseTimestamp(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, "relative") {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.In(r.loc), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, v, r.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// scan holds the per-call view of a transcript shared by all rules.
type scan struct {
	text     string // lowercased, trimmed
	now      time.Time
	today    time.Time
	base     time.Time // today, or yesterday after a "yesterday"/"last night" cue
	previous bool      // "yesterday"/"last night" cue present
	// causal is true when a causal verb governs the sentence and no
	// explicit "started ... in/at <daypart>" construction is present.
	causal bool
}

var (
	yesterdayCueRe   = regexp.MustCompile(`\byesterday\b|\blast\s+night\b`)
	causeVerbRe      = regexp.MustCompile(`\b(?:triggered|caused|brought on|started|sparked)\b`)
	startedDaypartRe = regexp.MustCompile(`\bstarted\b[^,.]{0,30}\b(?:in|at|this|last)\b[^,.]{0,15}\b(?:morning|noon|afternoon|evening|night|midnight|dawn|sunrise|sunset)\b`)
)

func newScan(transcript string, now time.Time) *scan {
	s := &scan{
		text:  strings.ToLower(strings.TrimSpace(transcript)),
		now:   now,
		today: startOfDay(now),
	}
	s.previous = yesterdayCueRe.MatchString(s.text)
	s.base = s.today
	if s.previous {
		s.base = s.today.AddDate(0, 0, -1)
	}
	s.causal = causeVerbRe.MatchString(s.text) && !startedDaypartRe.MatchString(s.text)
	return s
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func at(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}

// rule is one entry in the ordered onset rule list.
type rule struct {
	name     string
	explicit bool
	apply    func(*scan) (time.Time, bool)
}

var (
	justNowRe     = regexp.MustCompile(`\bjust now\b`)
	suddenOnsetRe = regexp.MustCompile(`\bsudden\s+onset\b`)
	causalOnsetRe = regexp.MustCompile(`\b(?:triggered|caused|brought on|started|sparked)[^,.]{0,50}\bonset\b`)
	wokeUpRe      = regexp.MustCompile(`\bwoke up\b`)
	relativeRe    = regexp.MustCompile(`\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s*(hour|hours|hr|hrs|h|minute|minutes|min|mins|m|legal)\s*(?:ago|before)\b`)
	sinceRe       = regexp.MustCompile(`\bsince\s+([^,.]+)`)
	clockAmPmRe   = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	bareHourRe    = regexp.MustCompile(`\b(\d{1,2})\b`)
	clock24Re     = regexp.MustCompile(`(\d{1,2}):(\d{2})\b`)
	todayRe       = regexp.MustCompile(`\btoday\b`)
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

// dayParts is ordered: the first keyword present wins.
var dayParts = []struct {
	re   *regexp.Regexp
	hour int
}{
	{regexp.MustCompile(`\bmorning\b`), 8},
	{regexp.MustCompile(`\bnoon\b`), 12},
	{regexp.MustCompile(`\bafternoon\b`), 15},
	{regexp.MustCompile(`\bevening\b`), 19},
	{regexp.MustCompile(`\b(?:to)?night\b`), 22},
	{regexp.MustCompile(`\bmidnight\b`), 0},
	{regexp.MustCompile(`\bdawn\b`), 5},
	{regexp.MustCompile(`\bsunrise\b`), 6},
	{regexp.MustCompile(`\bsunset\b`), 18},
}

// rules are evaluated top to bottom. Narrow, explicit phrases sit above the
// broad day-part and bare-day defaults they would otherwise be shadowed by.
var rules = []rule{
	// "just now", "sudden onset" and "<cause> ... onset" mean the attack is
	// happening as the user speaks.
	{name: "just_now", explicit: true, apply: func(s *scan) (time.Time, bool) {
		return s.now, justNowRe.MatchString(s.text)
	}},
	{name: "sudden_onset", explicit: true, apply: func(s *scan) (time.Time, bool) {
		return s.now, suddenOnsetRe.MatchString(s.text)
	}},
	{name: "causal_onset", explicit: true, apply: func(s *scan) (time.Time, bool) {
		return s.now, causalOnsetRe.MatchString(s.text)
	}},
	// Waking up with an attack pins it to the start of the day.
	{name: "woke_up", apply: func(s *scan) (time.Time, bool) {
		return at(s.today, 8, 0), wokeUpRe.MatchString(s.text)
	}},
	{name: "relative_offset", explicit: true, apply: relativeOffset},
	// "since" only fires when the phrase carries a usable clock time.
	{name: "since", explicit: true, apply: since},
	{name: "clock_ampm", explicit: true, apply: func(s *scan) (time.Time, bool) {
		h, m, ok := parseAmPm(clockAmPmRe.FindStringSubmatch(s.text))
		if !ok {
			return time.Time{}, false
		}
		return at(s.base, h, m), true
	}},
	// Day-parts are skipped when a causal verb governs them ("triggered by
	// evening light").
	{name: "day_part", apply: func(s *scan) (time.Time, bool) {
		if s.causal {
			return time.Time{}, false
		}
		for _, dp := range dayParts {
			if dp.re.MatchString(s.text) {
				return at(s.base, dp.hour, 0), true
			}
		}
		return time.Time{}, false
	}},
	{name: "clock_24h", explicit: true, apply: func(s *scan) (time.Time, bool) {
		m := clock24Re.FindStringSubmatch(s.text)
		if m == nil {
			return time.Time{}, false
		}
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		if h > 23 || mins > 59 {
			return time.Time{}, false
		}
		return at(s.base, h, mins), true
	}},
	{name: "today", apply: func(s *scan) (time.Time, bool) {
		return at(s.today, 8, 0), !s.causal && todayRe.MatchString(s.text)
	}},
	{name: "yesterday", apply: func(s *scan) (time.Time, bool) {
		return at(s.today.AddDate(0, 0, -1), 9, 0), s.previous
	}},
}

func relativeOffset(s *scan) (time.Time, bool) {
	m := relativeRe.FindStringSubmatch(s.text)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		n = numberWords[m[1]]
	}
	unit := m[2]
	if strings.HasPrefix(unit, "m") || unit == "legal" {
		return s.now.Add(-time.Duration(n) * time.Minute), true
	}
	return s.now.Add(-time.Duration(n) * time.Hour), true
}

func since(s *scan) (time.Time, bool) {
	m := sinceRe.FindStringSubmatch(s.text)
	if m == nil {
		return time.Time{}, false
	}
	phrase := strings.TrimSpace(m[1])
	if h, mins, ok := parseAmPm(clockAmPmRe.FindStringSubmatch(phrase)); ok {
		return at(s.today, h, mins), true
	}
	if mm := bareHourRe.FindStringSubmatch(phrase); mm != nil {
		if h, _ := strconv.Atoi(mm[1]); h <= 23 {
			return at(s.today, h, 0), true
		}
	}
	return time.Time{}, false
}

// parseAmPm converts a clockAmPmRe submatch to 24-hour time.
func parseAmPm(m []string) (hour, minute int, ok bool) {
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour < 1 || hour > 12 || minute > 59 {
		return 0, 0, false
	}
	switch {
	case m[3] == "am" && hour == 12:
		hour = 0
	case m[3] == "pm" && hour < 12:
		hour += 12
	}
	return hour, minute, true
}
