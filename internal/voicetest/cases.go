// Package voicetest runs the voice acceptance corpus: numbered sentences with
// per-field expectations, mapped in simulation mode (no LLM) and scored with
// tolerant comparisons.
package voicetest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/migraineai/voicelog/internal/extract"
)

// Case is one corpus entry.
type Case struct {
	ID       int      `json:"id"`
	Sentence string   `json:"sentence"`
	Expected Expected `json:"expected"`
}

// Expected holds a case's expectations. Zero values mean the field is
// expected to be absent, except Symptoms and Triggers: a nil list matches
// anything and an empty non-nil list ("none") requires no values.
type Expected struct {
	// StartTime is the raw expectation tag ("Today 7 AM", "-2 Hours").
	StartTime    string   `json:"start_time,omitempty"`
	Intensity    *int     `json:"intensity,omitempty"`
	PainLocation string   `json:"pain_location,omitempty"`
	Aura         *bool    `json:"aura,omitempty"`
	Symptoms     []string `json:"symptoms,omitempty"`
	Triggers     []string `json:"triggers,omitempty"`
}

var (
	caseLineRe = regexp.MustCompile(`^(\d{1,3})\.\s*(.+)$`)
	kvSplitRe  = regexp.MustCompile(`\s*:\s*`)
	tokenRe    = regexp.MustCompile(`[,\s]+`)
	truthyRe   = regexp.MustCompile(`(?i)1|true|yes`)
)

// keyAliases normalizes expectation keys, including typos found in the
// corpus.
var keyAliases = map[string]string{
	"trigger":        extract.FieldTriggers,
	"triggers":       extract.FieldTriggers,
	"symptom":        extract.FieldSymptoms,
	"symptoms":       extract.FieldSymptoms,
	"paint_location": extract.FieldPainLocation,
	"pain_location":  extract.FieldPainLocation,
	"intensity":      extract.FieldIntensity,
	"aura":           extract.FieldAura,
	"start_time":     extract.FieldStartTime,
}

// ParseCases reads a corpus. Lines that are neither a numbered sentence nor
// an "=> key: value" expectation following one are ignored.
func ParseCases(r io.Reader) ([]Case, error) {
	var (
		cases   []Case
		current *Case
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if m := caseLineRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				cases = append(cases, *current)
			}
			id, _ := strconv.Atoi(m[1])
			current = &Case{ID: id, Sentence: strings.TrimSpace(m[2])}
			continue
		}
		if current == nil || !strings.HasPrefix(line, "=>") {
			continue
		}
		parts := kvSplitRe.Split(strings.TrimSpace(line[2:]), 2)
		if len(parts) < 2 {
			continue
		}
		key, ok := keyAliases[strings.ToLower(strings.TrimSpace(parts[0]))]
		if !ok {
			continue
		}
		setExpectation(&current.Expected, key, strings.TrimSpace(parts[1]))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading cases: %w", err)
	}
	if current != nil {
		cases = append(cases, *current)
	}
	return cases, nil
}

func setExpectation(e *Expected, key, value string) {
	switch key {
	case extract.FieldIntensity:
		e.Intensity = nil
		if n, err := strconv.Atoi(value); err == nil {
			e.Intensity = &n
		}
	case extract.FieldAura:
		v := truthyRe.MatchString(value)
		e.Aura = &v
	case extract.FieldPainLocation:
		e.PainLocation = strings.ToLower(value)
	case extract.FieldSymptoms:
		e.Symptoms = tokens(value)
	case extract.FieldTriggers:
		e.Triggers = tokens(value)
	case extract.FieldStartTime:
		e.StartTime = value
	}
}

// noneValue marks a symptoms or triggers expectation that must be empty.
const noneValue = "none"

func tokens(s string) []string {
	if strings.EqualFold(strings.TrimSpace(s), noneValue) {
		return []string{}
	}
	var out []string
	for _, t := range tokenRe.Split(s, -1) {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Start-time tolerances. Relative tags ("-2 hours", "-30 mins") are precise;
// day tags are not.
const (
	RelativeTolerance = 5 * time.Minute
	TagTolerance      = 60 * time.Minute
)

var (
	bracketRe     = regexp.MustCompile(`\[(.+)\]`)
	tagRelativeRe = regexp.MustCompile(`(-?\d+)\s*(hours|hour|hrs|hr|minutes|minute|mins|min)`)
	tagClockRe    = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am|pm)`)
)

// ExpectedStart turns a start-time tag into a concrete time relative to now,
// along with the tolerance a match allows. ok is false for an empty, "null"
// or unrecognized tag.
func ExpectedStart(tag string, now time.Time, loc *time.Location) (time.Time, time.Duration, bool) {
	if loc == nil {
		loc = now.Location()
	}
	now = now.In(loc)
	if m := bracketRe.FindStringSubmatch(tag); m != nil {
		tag = m[1]
	}
	text := strings.ToLower(strings.TrimSpace(tag))
	if text == "" || text == "null" {
		return time.Time{}, 0, false
	}

	tol := TagTolerance
	if strings.Contains(text, "hour") || strings.Contains(text, "min") {
		tol = RelativeTolerance
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch {
	case strings.Contains(text, "timestamp_now") || strings.Contains(text, "currenttime"):
		return now, tol, true
	case tagRelativeRe.MatchString(text):
		m := tagRelativeRe.FindStringSubmatch(text)
		n, _ := strconv.Atoi(strings.TrimPrefix(m[1], "-"))
		unit := time.Minute
		if strings.HasPrefix(m[2], "h") {
			unit = time.Hour
		}
		return now.Add(-time.Duration(n) * unit), tol, true
	case strings.HasPrefix(text, "today"):
		rest := strings.TrimSpace(strings.TrimPrefix(text, "today"))
		if hh, mm, ok := clock(rest); ok {
			return midnight.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute), tol, true
		}
		return midnight.Add(9 * time.Hour), tol, true
	case strings.HasPrefix(text, "yesterday"):
		day := midnight.AddDate(0, 0, -1)
		rest := strings.TrimSpace(strings.TrimPrefix(text, "yesterday"))
		if hh, mm, ok := clock(rest); ok {
			return day.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute), tol, true
		}
		switch {
		case strings.Contains(rest, "morning"):
			return day.Add(9 * time.Hour), tol, true
		case strings.Contains(rest, "afternoon"):
			return day.Add(14 * time.Hour), tol, true
		}
		return day.Add(21 * time.Hour), tol, true
	}
	if hh, mm, ok := clock(text); ok {
		return midnight.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute), tol, true
	}
	return time.Time{}, 0, false
}

// clock reads "h[:mm] am|pm" as a 24-hour time of day.
func clock(s string) (hour, minute int, ok bool) {
	m := tagClockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch {
	case m[3] == "am" && hour == 12:
		hour = 0
	case m[3] == "pm" && hour < 12:
		hour += 12
	}
	return hour, minute, true
}
