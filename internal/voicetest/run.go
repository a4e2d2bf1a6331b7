package voicetest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/migraineai/voicelog/internal/extract"
)

// Fields are the scored fields, in report order.
var Fields = []string{
	extract.FieldStartTime,
	extract.FieldIntensity,
	extract.FieldPainLocation,
	extract.FieldTriggers,
	extract.FieldSymptoms,
	extract.FieldAura,
}

// Mapper maps an analysis plus transcript to a payload. *extract.Mapper
// satisfies it.
type Mapper interface {
	Map(a extract.AnalysisResult, transcript string) extract.Payload
}

// Compare reports whether actual satisfies the expectation for one field.
// now anchors start-time tags.
func Compare(field string, exp Expected, actual extract.Payload, now time.Time) bool {
	switch field {
	case extract.FieldStartTime:
		want, tol, ok := ExpectedStart(exp.StartTime, now, now.Location())
		if !ok {
			return actual.StartTime == nil
		}
		if actual.StartTime == nil {
			return false
		}
		diff := actual.StartTime.Sub(want)
		return time.Duration(math.Abs(float64(diff))) <= tol
	case extract.FieldIntensity:
		if exp.Intensity == nil {
			return actual.Intensity == nil
		}
		return actual.Intensity != nil && *actual.Intensity == *exp.Intensity
	case extract.FieldPainLocation:
		if exp.PainLocation == "" {
			return actual.PainLocation == ""
		}
		return strings.EqualFold(exp.PainLocation, actual.PainLocation)
	case extract.FieldAura:
		if exp.Aura == nil {
			return actual.Aura == nil
		}
		return actual.Aura != nil && *actual.Aura == *exp.Aura
	case extract.FieldSymptoms:
		return listMatch(exp.Symptoms, actual.Symptoms)
	case extract.FieldTriggers:
		return listMatch(exp.Triggers, actual.Triggers)
	}
	return false
}

// listMatch compares a symptoms or triggers expectation. An empty non-nil
// expectation requires an empty list; otherwise every expected tag must
// appear in actual with the same spelling and case. Extra actual values are
// allowed.
func listMatch(expected, actual []string) bool {
	if expected != nil && len(expected) == 0 {
		return len(actual) == 0
	}
	for _, want := range expected {
		if !slices.Contains(actual, want) {
			return false
		}
	}
	return true
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Case    Case            `json:"case"`
	Actual  extract.Payload `json:"actual"`
	Fields  map[string]bool `json:"per_field"`
	Pass    bool            `json:"pass"`
	Elapsed time.Duration   `json:"elapsed_ns"`
}

// FailedFields lists the fields that did not match, in report order.
func (r CaseResult) FailedFields() []string {
	var out []string
	for _, f := range Fields {
		if !r.Fields[f] {
			out = append(out, f)
		}
	}
	return out
}

// Run maps every case with an empty analysis (simulation mode) and scores
// it against its expectations.
func Run(cases []Case, m Mapper, now time.Time) []CaseResult {
	results := make([]CaseResult, 0, len(cases))
	for _, c := range cases {
		start := time.Now()
		actual := m.Map(extract.AnalysisResult{}, c.Sentence)
		elapsed := time.Since(start)

		res := CaseResult{Case: c, Actual: actual, Fields: make(map[string]bool, len(Fields)), Pass: true, Elapsed: elapsed}
		for _, f := range Fields {
			ok := Compare(f, c.Expected, actual, now)
			res.Fields[f] = ok
			res.Pass = res.Pass && ok
		}
		results = append(results, res)
	}
	return results
}

// FieldStat counts passes for one field.
type FieldStat struct {
	Pass  int `json:"pass"`
	Total int `json:"total"`
}

// Accuracy is the pass rate in percent.
func (s FieldStat) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Pass) / float64(s.Total) * 100
}

// Report summarizes a run.
type Report struct {
	Total  int                  `json:"total"`
	Passed int                  `json:"passed"`
	Fields map[string]FieldStat `json:"per_field"`
	Avg    time.Duration        `json:"avg_ns"`
	Median time.Duration        `json:"median_ns"`
	P95    time.Duration        `json:"p95_ns"`
	Failed []CaseResult         `json:"failed,omitempty"`
}

// Summarize builds a Report from results.
func Summarize(results []CaseResult) Report {
	r := Report{Total: len(results), Fields: make(map[string]FieldStat, len(Fields))}
	times := make([]time.Duration, 0, len(results))
	var sum time.Duration
	for _, res := range results {
		if res.Pass {
			r.Passed++
		} else {
			r.Failed = append(r.Failed, res)
		}
		for _, f := range Fields {
			st := r.Fields[f]
			st.Total++
			if res.Fields[f] {
				st.Pass++
			}
			r.Fields[f] = st
		}
		times = append(times, res.Elapsed)
		sum += res.Elapsed
	}
	if len(times) > 0 {
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		r.Avg = sum / time.Duration(len(times))
		r.Median = times[len(times)/2]
		r.P95 = times[min(len(times)-1, int(math.Floor(float64(len(times))*0.95)))]
	}
	return r
}

// Write renders the report as a plain-text summary.
func (r Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "tests run:\t%d\n", r.Total)
	fmt.Fprintf(tw, "passes:\t%d\n", r.Passed)
	fmt.Fprintf(tw, "fails:\t%d\n", r.Total-r.Passed)
	fmt.Fprintln(tw, "per-field accuracy:")
	for _, f := range Fields {
		st := r.Fields[f]
		fmt.Fprintf(tw, "- %s:\t%.2f%%\t(%d/%d)\n", f, st.Accuracy(), st.Pass, st.Total)
	}
	fmt.Fprintf(tw, "avg time_to_parse:\t%s\n", r.Avg)
	fmt.Fprintf(tw, "median time_to_parse:\t%s\n", r.Median)
	fmt.Fprintf(tw, "p95 time_to_parse:\t%s\n", r.P95)
	return tw.Flush()
}

// WriteFailuresCSV writes one row per failed case: id, sentence and the
// failed fields joined by "|".
func WriteFailuresCSV(w io.Writer, results []CaseResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "sentence", "reason"}); err != nil {
		return err
	}
	for _, res := range results {
		if res.Pass {
			continue
		}
		row := []string{
			fmt.Sprintf("%d", res.Case.ID),
			strings.ReplaceAll(res.Case.Sentence, "\n", " "),
			strings.Join(res.FailedFields(), "|"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
