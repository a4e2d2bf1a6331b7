package voicetest

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/temporal"
)

var fixedNow = time.Date(2025, 3, 10, 14, 30, 45, 0, temporal.DefaultLocation())

func intPtr(i int) *int              { return &i }
func boolPtr(b bool) *bool           { return &b }
func timePtr(t time.Time) *time.Time { return &t }

func newTestMapper() *extract.Mapper {
	resolver := temporal.NewResolver(temporal.WithNow(func() time.Time { return fixedNow }))
	return extract.NewMapper(resolver, extract.NewGuard(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestParseCases(t *testing.T) {
	in := `# heading
1. first sentence
=> intensity: 7
=> Trigger: stress, caffeine
=> paint_location: Left Temple
=> aura: Yes
=> unknown: ignored
stray line
2.   second one
=> symptom: Nausea Photophobia
=> start_time: [Today 7 AM]
=> intensity: n/a
`
	cases, err := ParseCases(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, Case{
		ID:       1,
		Sentence: "first sentence",
		Expected: Expected{
			Intensity:    intPtr(7),
			PainLocation: "left temple",
			Aura:         boolPtr(true),
			Triggers:     []string{"stress", "caffeine"},
		},
	}, cases[0])
	assert.Equal(t, Case{
		ID:       2,
		Sentence: "second one",
		Expected: Expected{
			StartTime: "[Today 7 AM]",
			Symptoms:  []string{"Nausea", "Photophobia"},
		},
	}, cases[1])
}

func TestParseCasesNone(t *testing.T) {
	cases, err := ParseCases(strings.NewReader("1. weather talk\n=> triggers: None\n=> symptoms: Nausea\n"))
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.NotNil(t, cases[0].Expected.Triggers)
	assert.Empty(t, cases[0].Expected.Triggers)
	assert.Equal(t, []string{"Nausea"}, cases[0].Expected.Symptoms)
}

func TestParseCasesIgnoresOrphanExpectations(t *testing.T) {
	cases, err := ParseCases(strings.NewReader("=> intensity: 5\n"))
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestExpectedStart(t *testing.T) {
	loc := temporal.DefaultLocation()
	day := func(d, h, m int) time.Time { return time.Date(2025, 3, d, h, m, 0, 0, loc) }

	tests := []struct {
		tag  string
		want time.Time
		tol  time.Duration
	}{
		{"Timestamp_Now", fixedNow, TagTolerance},
		{"CurrentTime", fixedNow, TagTolerance},
		{"-2 Hours", fixedNow.Add(-2 * time.Hour), RelativeTolerance},
		{"[-30 Mins]", fixedNow.Add(-30 * time.Minute), RelativeTolerance},
		{"Today", day(10, 9, 0), TagTolerance},
		{"Today 7:30 PM", day(10, 19, 30), TagTolerance},
		{"Today 12 AM", day(10, 0, 0), TagTolerance},
		{"Yesterday", day(9, 21, 0), TagTolerance},
		{"Yesterday 6 AM", day(9, 6, 0), TagTolerance},
		{"Yesterday morning", day(9, 9, 0), TagTolerance},
		{"Yesterday afternoon", day(9, 14, 0), TagTolerance},
		{"Yesterday evening", day(9, 21, 0), TagTolerance},
		{"12:00 PM", day(10, 12, 0), TagTolerance},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, tol, ok := ExpectedStart(tt.tag, fixedNow, loc)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
			assert.Equal(t, tt.tol, tol)
		})
	}

	for _, tag := range []string{"", "null", "sometime"} {
		_, _, ok := ExpectedStart(tag, fixedNow, loc)
		assert.False(t, ok, tag)
	}
}

func TestCompare(t *testing.T) {
	actual := extract.Payload{
		StartTime:    timePtr(fixedNow.Add(-118 * time.Minute)),
		Intensity:    intPtr(7),
		PainLocation: "Left Temple",
		Symptoms:     []string{"Nausea", "Photophobia", "Vomiting"},
		Triggers:     []string{"Emotional_Stress"},
	}

	tests := []struct {
		name  string
		field string
		exp   Expected
		want  bool
	}{
		{"start within relative tolerance", extract.FieldStartTime, Expected{StartTime: "-2 hours"}, true},
		{"start outside relative tolerance", extract.FieldStartTime, Expected{StartTime: "-3 hours"}, false},
		{"start expected absent", extract.FieldStartTime, Expected{}, false},
		{"intensity equal", extract.FieldIntensity, Expected{Intensity: intPtr(7)}, true},
		{"intensity differs", extract.FieldIntensity, Expected{Intensity: intPtr(6)}, false},
		{"intensity expected absent", extract.FieldIntensity, Expected{}, false},
		{"location ignores case", extract.FieldPainLocation, Expected{PainLocation: "left temple"}, true},
		{"location differs", extract.FieldPainLocation, Expected{PainLocation: "forehead"}, false},
		{"aura expected absent", extract.FieldAura, Expected{}, true},
		{"aura expected present", extract.FieldAura, Expected{Aura: boolPtr(true)}, false},
		{"symptoms subset", extract.FieldSymptoms, Expected{Symptoms: []string{"Nausea", "Vomiting"}}, true},
		{"symptoms match case", extract.FieldSymptoms, Expected{Symptoms: []string{"nausea", "vomiting"}}, false},
		{"symptoms missing one", extract.FieldSymptoms, Expected{Symptoms: []string{"Nausea", "Aura"}}, false},
		{"symptoms expected none", extract.FieldSymptoms, Expected{Symptoms: []string{}}, false},
		{"no trigger expectation", extract.FieldTriggers, Expected{}, true},
		{"trigger tag case", extract.FieldTriggers, Expected{Triggers: []string{"emotional_stress"}}, false},
		{"unknown field", "notes", Expected{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.field, tt.exp, actual, fixedNow))
		})
	}

	assert.True(t, Compare(extract.FieldStartTime, Expected{}, extract.Payload{}, fixedNow))
	assert.True(t, Compare(extract.FieldTriggers, Expected{Triggers: []string{}}, extract.Payload{}, fixedNow))
	assert.False(t, Compare(extract.FieldStartTime, Expected{StartTime: "Today"}, extract.Payload{}, fixedNow))
}

func TestCorpus(t *testing.T) {
	f, err := os.Open("testdata/cases.md")
	require.NoError(t, err)
	defer f.Close()

	cases, err := ParseCases(f)
	require.NoError(t, err)
	require.Len(t, cases, 20)

	results := Run(cases, newTestMapper(), fixedNow)
	for _, res := range results {
		assert.True(t, res.Pass, "case %d %q failed on %v: %+v", res.Case.ID, res.Case.Sentence, res.FailedFields(), res.Actual)
	}

	report := Summarize(results)
	assert.Equal(t, 20, report.Total)
	assert.Equal(t, 20, report.Passed)
	assert.Empty(t, report.Failed)
	for _, field := range Fields {
		assert.Equal(t, 100.0, report.Fields[field].Accuracy(), field)
	}
}

func TestReportAndFailuresCSV(t *testing.T) {
	cases := []Case{
		{ID: 1, Sentence: "my head is pounding", Expected: Expected{Intensity: intPtr(7), PainLocation: "head"}},
		{ID: 2, Sentence: "my head is pounding, again", Expected: Expected{Intensity: intPtr(3)}},
	}
	results := Run(cases, newTestMapper(), fixedNow)
	require.Len(t, results, 2)
	assert.True(t, results[0].Pass)
	assert.False(t, results[1].Pass)
	assert.Equal(t, []string{extract.FieldIntensity, extract.FieldPainLocation}, results[1].FailedFields())

	report := Summarize(results)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, FieldStat{Pass: 1, Total: 2}, report.Fields[extract.FieldIntensity])
	assert.Equal(t, 50.0, report.Fields[extract.FieldIntensity].Accuracy())

	var summary bytes.Buffer
	require.NoError(t, report.Write(&summary))
	assert.Contains(t, summary.String(), "tests run:")
	assert.Contains(t, summary.String(), "- intensity:")
	assert.Contains(t, summary.String(), "50.00%")

	var csvOut bytes.Buffer
	require.NoError(t, WriteFailuresCSV(&csvOut, results))
	assert.Equal(t, "id,sentence,reason\n2,\"my head is pounding, again\",intensity|pain_location\n", csvOut.String())
}

func TestSummarizeEmpty(t *testing.T) {
	report := Summarize(nil)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, time.Duration(0), report.P95)
	assert.Equal(t, 0.0, report.Fields[extract.FieldAura].Accuracy())
}
