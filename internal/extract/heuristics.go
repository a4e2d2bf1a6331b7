package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/migraineai/voicelog/internal/vocab"
)

// Local is the result of the keyword heuristics. Zero values mean the
// heuristics found nothing for that field.
type Local struct {
	Intensity *int
	Location  string
	// LocationDirect is true when Location is a phrase the speaker actually
	// used, false when it is a fallback bucket ("other") or a remap.
	LocationDirect bool
	Symptoms       []string
	Triggers       []string
	// Aura is only ever set to true.
	Aura *bool
}

// LocationOther is the bucket used when context implies a pain location
// without naming one.
const LocationOther = "other"

// word compiles a case-sensitive whole-word matcher for a lowercase phrase.
func word(s string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(s) + `\b`)
}

// phrase is a candidate matched by word boundary (single short tokens) or by
// substring (multi-word phrases).
type phrase struct {
	text string
	re   *regexp.Regexp
}

func (p phrase) in(t string) bool {
	if p.re != nil {
		return p.re.MatchString(t)
	}
	return strings.Contains(t, p.text)
}

// phrases builds candidates; tokens without spaces shorter than 15 bytes get
// word-boundary matching.
func phrases(items ...string) []phrase {
	out := make([]phrase, len(items))
	for i, s := range items {
		out[i] = phrase{text: s}
		if len(s) < 15 && !strings.Contains(s, " ") {
			out[i].re = word(s)
		}
	}
	return out
}

var nonPrintableRe = regexp.MustCompile(`[^\x20-\x7E]`)

// ExtractLocally runs the deterministic keyword heuristics over a transcript.
// It is a pure function of its input.
func ExtractLocally(transcript string) Local {
	t := strings.ToLower(nonPrintableRe.ReplaceAllString(transcript, ""))
	if strings.TrimSpace(t) == "" {
		return Local{}
	}

	var out Local
	out.Intensity = localIntensity(t)
	out.Location, out.LocationDirect = candidateLocation(t)

	if out.Intensity != nil && paresthesiaRe.MatchString(t) && !painOrPulseRe.MatchString(t) {
		out.Intensity = nil
	}

	out.Symptoms = localSymptoms(t)
	out.Triggers = localTriggers(t, out.Symptoms)
	if auraWordsRe.MatchString(t) {
		v := true
		out.Aura = &v
	}

	applyIntensityAdjustments(t, &out)
	applyLocationFallbacks(t, &out)
	return out
}

// --- intensity ---

var (
	outOfTenRe      = regexp.MustCompile(`(\d{1,2})\s*(?:/10|out of 10|out of ten)`)
	scoreRe         = regexp.MustCompile(`(?:intensity|pain level|level|score|about)\D{0,30}(\d{1,2})\b`)
	// timeUnitAfterRe rejects a score match that is really a duration or a
	// clock time ("about 2 hours ago").
	timeUnitAfterRe = regexp.MustCompile(`^\s*(?:hours?|hrs?|minutes?|mins?|am\b|pm\b|o'clock|:\d)`)

	painContextRe  = regexp.MustCompile(`\b(?:pain|hurts|ache|aching|stabbing|splitting|shooting|piercing|pounding)\b`)
	painOrPulseRe  = regexp.MustCompile(`\b(?:pain|hurts|ache|aching|stabbing|splitting|shooting|piercing|pounding|throbbing|pulsing)\b`)
	causeContextRe = regexp.MustCompile(`\b(?:triggered|caused|due to|because of|made|making|after)\b`)
	anatomyRe      = regexp.MustCompile(`\b(?:temple|eye|eyes|forehead|brow|eyebrow|nose|jaw|jawline|teeth|cheek|cheekbone|sinus|neck|head|skull|occipital|crown|face|left|right)\b`)
	pulseRe        = regexp.MustCompile(`\b(?:pulsing|throbbing)\b`)
	pulseFeelRe    = regexp.MustCompile(`\b(?:pulsing\s+sensation|throbbing\s+sensation)\b`)
	heavyEyesRe    = regexp.MustCompile(`\bheavy\s+eyes\b|\beyes\s+heavy\b`)
	mildModerateRe = regexp.MustCompile(`mild\s*(?:to|-)\s*moderate`)
	manageAcheRe   = regexp.MustCompile(`\bmanageable\s+ache\b`)
	tightBandRe    = regexp.MustCompile(`tight\s+band`)
	paresthesiaRe  = regexp.MustCompile(`\b(?:pins\s+and\s+needles|tingling|numbness)\b`)
	mainTriggerRe  = regexp.MustCompile(`\bmain\s+trigger\b`)

	wordCrushing   = word("crushing")
	wordWeight     = word("weight")
	wordUnbearable = word("unbearable")
	wordWorst      = word("worst")
	wordEver       = word("ever")
	wordHeavy      = word("heavy")
	wordSevere     = word("severe")
	wordThrobbing  = word("throbbing")
)

// adjectiveScores maps pain descriptors to a 0-10 score. Matched scores are
// averaged and floored.
var adjectiveScores = []struct {
	word  string
	score int
	re    *regexp.Regexp
}{
	{word: "mild", score: 2},
	{word: "light ache", score: 2},
	{word: "manageable", score: 3},
	{word: "manageable ache", score: 6},
	{word: "sharp ache", score: 7},
	{word: "moderate", score: 5},
	{word: "severe", score: 8},
	{word: "intense", score: 8},
	{word: "pounding", score: 7},
	{word: "piercing", score: 8},
	{word: "throbbing", score: 6},
	{word: "pulsing", score: 6},
	{word: "splitting", score: 9},
	{word: "stabbing", score: 8},
	{word: "shooting", score: 8},
	{word: "heavy", score: 5},
	{word: "crushing", score: 9},
	{word: "unbearable", score: 10},
	{word: "worst", score: 9},
	{word: "violent", score: 9},
	{word: "killer", score: 9},
	{word: "killing", score: 9},
	{word: "exploding", score: 10},
	{word: "excruciating", score: 10},
	{word: "nagging", score: 3},
	{word: "pressure", score: 5},
	{word: "dull", score: 3},
}

func init() {
	for i := range adjectiveScores {
		adjectiveScores[i].re = word(adjectiveScores[i].word)
	}
}

var spokenNumbers = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

func localIntensity(t string) *int {
	if m := outOfTenRe.FindStringSubmatch(t); m != nil {
		return boundedScore(m[1])
	}
	if loc := scoreRe.FindStringSubmatchIndex(t); loc != nil && !timeUnitAfterRe.MatchString(t[loc[1]:]) {
		return boundedScore(t[loc[2]:loc[3]])
	}
	if v := adjectiveIntensity(t); v != nil {
		return v
	}
	return bareAnswer(t)
}

func boundedScore(digits string) *int {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || n > 10 {
		return nil
	}
	return &n
}

// adjectiveIntensity scores descriptive words. Pulse adjectives and "heavy"
// only count with pain or anatomical context, so "heavy eyes" or a "pulsing
// sensation" alone do not read as pain.
func adjectiveIntensity(t string) *int {
	excluded := map[string]bool{}
	hasPain := painContextRe.MatchString(t)
	if !hasPain {
		hasAnatomy := anatomyRe.MatchString(t)
		hasPulse := pulseRe.MatchString(t)
		if hasPulse && (hasAnatomy || causeContextRe.MatchString(t)) {
			hasPain = true
		}
		if !hasAnatomy {
			excluded["heavy"] = true
		}
	}
	if pulseFeelRe.MatchString(t) {
		excluded["pulsing"], excluded["throbbing"] = true, true
	}
	if !hasPain && wordCrushing.MatchString(t) && wordWeight.MatchString(t) {
		excluded["crushing"] = true
	}
	if heavyEyesRe.MatchString(t) {
		excluded["heavy"] = true
	}
	if !hasPain {
		excluded["pulsing"], excluded["throbbing"] = true, true
	}

	mildToModerate := mildModerateRe.MatchString(t)
	manageableAche := manageAcheRe.MatchString(t)

	var matched []int
	for _, adj := range adjectiveScores {
		if excluded[adj.word] {
			continue
		}
		if mildToModerate && (adj.word == "mild" || adj.word == "moderate") {
			continue
		}
		if manageableAche && adj.word == "manageable" {
			continue
		}
		if adj.re.MatchString(t) {
			matched = append(matched, adj.score)
		}
	}
	if mildToModerate {
		matched = append(matched, 6)
	}
	if tightBandRe.MatchString(t) {
		matched = append(matched, 5)
	}
	if len(matched) == 0 {
		return nil
	}

	sum := 0
	for _, v := range matched {
		sum += v
	}
	score := sum / len(matched)

	if wordUnbearable.MatchString(t) {
		score = 10
	}
	if wordWorst.MatchString(t) {
		if wordEver.MatchString(t) {
			score = 10
		} else if score < 9 {
			score = 9
		}
	}
	if wordHeavy.MatchString(t) && wordCrushing.MatchString(t) {
		score = max(score, 9)
	}
	if wordSevere.MatchString(t) && wordThrobbing.MatchString(t) {
		score = max(score, 8)
	}
	return &score
}

// bareAnswer reads a transcript that is only a number ("7", "seven"), the
// usual reply to "how intense is the pain?".
func bareAnswer(t string) *int {
	s := strings.Trim(strings.TrimSpace(t), ".!")
	if n, ok := spokenNumbers[s]; ok {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return nil
	}
	n := int(math.Round(f))
	if n < 0 || n > 10 {
		return nil
	}
	return &n
}

func applyIntensityAdjustments(t string, out *Local) {
	if out.Intensity == nil && contains(out.Symptoms, "Weakness") && contains(out.Symptoms, "Pallor") {
		v := 1
		out.Intensity = &v
	}
	if (contains(out.Triggers, "Menstruation") || contains(out.Triggers, "Hormonal")) && mainTriggerRe.MatchString(t) {
		if out.Intensity == nil || *out.Intensity < 9 {
			v := 9
			out.Intensity = &v
		}
	}
}

// --- location ---

var (
	wordScalp     = word("scalp")
	wordEyebrow   = word("eyebrow")
	wordBrow      = word("brow")
	wordEye       = word("eye")
	wordBrief     = word("brief")
	baseOfSkullRe = regexp.MustCompile(`\bbase\s+of\s+(?:the\s+)?skull\b`)
)

// locationCandidates is ordered from most to least specific. The first hit
// wins. One-word candidates match on word boundaries, phrases as substrings.
// Bare "left"/"right" come last and are downgraded without context.
var locationCandidates = func() []phrase {
	items := []string{
		"behind my right eye", "behind my left eye", "right eye", "left eye", "eye socket", "socket",
		"behind my eye", "behind my eyes", "behind the eyes", "around my eyes", "around the eyes", "around eye", "around the eye", "between eyes", "between my eyes",
		"left temple", "right temple", "temples", "temple", "front/forehead", "front / forehead", "forehead", "front", "frontal", "brow", "eyebrow", "nose bridge", "bridge of nose", "face",
		"left side", "right side",
		"jaw", "jawline", "teeth", "cheek", "cheekbone", "sinus", "sinus cavity", "scalp",
		"both sides", "both side", "both", "whole head", "bilateral",
		"back of head", "back of my head", "back of the head", "back of head/neck", "back of head or neck", "back of my head or neck", "back of head/ neck",
		"back of neck", "base of neck", "at the base of my neck", "upper neck", "lower neck", "nape", "nape of neck", "neck", "neck area", "neck region",
		"occipital", "crown", "top", "base of my skull", "base of skull", "back of skull", "back of my skull",
		"base of the skull",
		"head", "of my head", "of the head",
		"left", "right",
	}
	out := make([]phrase, len(items))
	for i, s := range items {
		out[i] = phrase{text: s}
		if !strings.ContainsAny(s, " /") {
			out[i].re = word(s)
		}
	}
	return out
}()

// candidateLocation runs the early remaps and the ordered candidate list.
// A one-word candidate ("top", "both", "face") only counts as a location
// when a pain word sits next to it; otherwise the scan moves on. Bare sides
// are kept undirected so the downgrade below can bucket them.
func candidateLocation(t string) (string, bool) {
	if wordScalp.MatchString(t) && (wordEyebrow.MatchString(t) || wordBrow.MatchString(t)) {
		return LocationOther, false
	}
	if baseOfSkullRe.MatchString(t) {
		return "frontal", false
	}
	brief := wordBrief.MatchString(t)
	for _, c := range locationCandidates {
		span := c.find(t)
		if span == nil {
			continue
		}
		if c.text == "socket" && brief {
			continue
		}
		if strings.ContainsAny(c.text, " /") {
			return c.text, true
		}
		anchored := nearPainCue(t, span, c.text == "left" || c.text == "right")
		switch {
		case anchored:
			return c.text, true
		case c.text == "left" || c.text == "right":
			return c.text, false
		}
	}
	return "", false
}

func (p phrase) find(t string) []int {
	if p.re != nil {
		return p.re.FindStringIndex(t)
	}
	if i := strings.Index(t, p.text); i >= 0 {
		return []int{i, i + len(p.text)}
	}
	return nil
}

// locationWindow is how many words either side of a one-word location are
// searched for a pain cue.
const locationWindow = 3

var (
	tokenRe       = regexp.MustCompile(`[a-z']+`)
	painCueWords  = toSet("pain", "painful", "pains", "hurts", "hurt", "hurting", "ache", "aches", "aching", "throbbing", "throbs", "pounding", "pounds", "stabbing", "splitting", "shooting", "piercing", "pulsing", "pulsating", "pressure", "tight", "tightness", "sore", "headache", "migraine")
	sideCueWords  = toSet("temple", "eye", "eyes", "forehead", "brow", "eyebrow", "jaw", "cheek", "neck", "head", "skull", "side", "face")
	idiomPrefixRe = regexp.MustCompile(`\b(?:in front|on top|come back|came back|coming back|is back)$`)
)

func toSet(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}

// nearPainCue reports whether a pain word (or, for a side, an anatomy word)
// appears within locationWindow words of span. Idioms such as "in front of"
// and "on top of" never anchor.
func nearPainCue(t string, span []int, side bool) bool {
	if idiomPrefixRe.MatchString(strings.TrimSpace(t[:span[1]])) {
		return false
	}
	words := tokenRe.FindAllStringIndex(t, -1)
	first, last := -1, -1
	for i, w := range words {
		if w[0] >= span[0] && w[1] <= span[1] {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return false
	}
	cue := func(i int) bool {
		w := t[words[i][0]:words[i][1]]
		return painCueWords[w] || (side && sideCueWords[w])
	}
	for i := max(0, first-locationWindow); i < first; i++ {
		if cue(i) {
			return true
		}
	}
	for i := last + 1; i < len(words) && i <= last+locationWindow; i++ {
		if cue(i) {
			return true
		}
	}
	return false
}

var (
	eyePainVerbsRe   = regexp.MustCompile(`\b(?:pain|hurts|ache|aching|stabbing|splitting|pulsing|throbbing|shooting)\b`)
	eyesRe           = regexp.MustCompile(`\b(?:eye|eyes)\b`)
	heavyHeadRe      = regexp.MustCompile(`\bheavy\b[^.]{0,40}\b(?:head|head\s+pain|headache)\b`)
	fallbackPainRe   = regexp.MustCompile(`\b(?:pain|hurts|ache|aching|stabbing|splitting|pulsing|throbbing|shooting|piercing|pounding|drill)\b`)
	badHeadacheRe    = regexp.MustCompile(`\b(?:bad|severe|intense|worst)\b[^.]{0,80}\b(?:headache|head\s+pain|migraine|head)\b`)
	visionDizzyRe    = regexp.MustCompile(`\b(?:vision|blurry vision|dizzy|dizziness|vertigo)\b`)
	worstYetRe       = regexp.MustCompile(`\bworst\b[^.]*\byet\b`)
	sorenessRe       = regexp.MustCompile(`\bsoreness\b`)
	sideAnatomyRe    = regexp.MustCompile(`\b(?:temple|eye|eyes|forehead|brow|eyebrow|nose|jaw|jawline|teeth|cheek|cheekbone|sinus|neck|head|skull|occipital|crown|face)\b`)
	fallbackCauseSub = []string{"triggered", "caused", "due to", "because of", "made", "making", "after", "from"}
)

// applyLocationFallbacks assigns the "other" bucket when the context implies
// a real location without naming one. Runs after symptoms and triggers are
// known, since several rules depend on them.
func applyLocationFallbacks(t string, out *Local) {
	set := func(loc string) {
		out.Location, out.LocationDirect = loc, false
	}

	if out.Location == "" && wordEye.MatchString(t) && eyePainVerbsRe.MatchString(t) {
		set("frontal")
	}
	if out.Location == "" && contains(out.Symptoms, "Yawning") && eyesRe.MatchString(t) {
		set(LocationOther)
	}
	if out.Location == "" && heavyHeadRe.MatchString(t) {
		set(LocationOther)
	}
	if out.Location == "" && out.Triggers != nil && out.Symptoms != nil {
		switch {
		case contains(out.Triggers, "Weather") && contains(out.Symptoms, "Vomiting"),
			contains(out.Triggers, "Screen_Exposure") && contains(out.Symptoms, "Fatigue"),
			(contains(out.Triggers, "Olfactory_Smoke") || contains(out.Triggers, "Olfactory_Perfume")) && contains(out.Symptoms, "Vomiting"),
			contains(out.Triggers, "Travel"):
			set(LocationOther)
		}
	}
	if out.Location == "" && len(out.Triggers) > 0 {
		hasWeather := false
		for _, tr := range out.Triggers {
			if strings.HasPrefix(tr, "Weather") {
				hasWeather = true
				break
			}
		}
		hasPain := fallbackPainRe.MatchString(t)
		painful := hasWeather || contains(out.Triggers, "Screen_Exposure") || contains(out.Triggers, "Light_Bright") ||
			contains(out.Triggers, "Light_Glare") || contains(out.Triggers, "Emotional_Stress") || contains(out.Triggers, "Dietary_Chocolate")
		if hasPain && painful {
			set(LocationOther)
		}
		if !hasPain && containsAny(t, fallbackCauseSub) && contains(out.Triggers, "Dietary_Chocolate") {
			set(LocationOther)
		}
	}
	if out.Location == "" && badHeadacheRe.MatchString(t) {
		set(LocationOther)
	}
	if out.Location == "" && out.Intensity != nil && visionDizzyRe.MatchString(t) {
		set(LocationOther)
	}
	if out.Location == "" && contains(out.Symptoms, "Tinnitus") && contains(out.Symptoms, "Vertigo") {
		set(LocationOther)
	}
	if out.Location == "" && out.Intensity != nil && *out.Intensity >= 7 {
		if anatomyRe.MatchString(t) || (worstYetRe.MatchString(t) && *out.Intensity >= 9) {
			set(LocationOther)
		}
	}
	if out.Location == "" && sorenessRe.MatchString(t) {
		set(LocationOther)
	}
	if out.Location == "left" || out.Location == "right" {
		if !painContextRe.MatchString(t) && !sideAnatomyRe.MatchString(t) {
			set(LocationOther)
		}
	}
	if out.Location == "" && out.Intensity != nil && (contains(out.Symptoms, "Photophobia") || contains(out.Symptoms, "Phonophobia")) {
		set(LocationOther)
	}
	// A "brief" episode is too vague to place.
	if wordBrief.MatchString(t) {
		set("")
	}
}

// --- symptoms, triggers, aura ---

var symptomCandidates = phrases(
	"nausea", "nauseous", "vomiting", "puking", "throwing up", "throw up", "feel sick", "queasy",
	"aura", "visuals", "visual", "zigzag", "spots", "flashes", "stars", "blurriness", "blurry", "blind spot", "tunnel vision",
	"light sensitivity", "sensitivity to light", "photophobia", "sound sensitivity", "sensitivity to sound", "phonophobia",
	"smell sensitivity", "osmophobia", "dizziness", "dizzy", "vertigo", "brain fog", "confusion", "cognitive", "dysfunction",
	"fatigue", "exhaustion", "weakness", "weak", "numbness", "tingling", "pins and needles", "stiff neck", "neck is stiff",
	"yawning", "chills", "sweating", "pale", "speech", "slurring", "ringing", "tinnitus",
)

// sensitivityPatterns catch phrasings the candidate list misses, such as
// "sensitivity to loud noise".
var sensitivityPatterns = []struct {
	re  *regexp.Regexp
	tag string
}{
	{regexp.MustCompile(`sensitivity\s+to\s+light`), "sensitivity to light"},
	{regexp.MustCompile(`sensitivity\s+to\b[^.]*\b(?:sound|noise)\b`), "sensitivity to sound"},
	{regexp.MustCompile(`sensitive\s+to\s+light`), "sensitive to light"},
	{regexp.MustCompile(`sensitive\s+to\s+(?:sound|noise)`), "sensitive to sound"},
	{regexp.MustCompile(`sensitivity\s+to\s+smell`), "sensitivity to smell"},
	{regexp.MustCompile(`sensitive\s+to\s+smell`), "sensitive to smell"},
}

func localSymptoms(t string) []string {
	var raw []string
	for _, c := range symptomCandidates {
		if c.in(t) {
			raw = append(raw, c.text)
		}
	}
	for _, p := range sensitivityPatterns {
		if p.re.MatchString(t) {
			raw = append(raw, p.tag)
		}
	}
	return vocab.MapSymptoms(raw)
}

var triggerCandidates = phrases(
	"stress", "anxiety", "crying", "tension",
	"sleep", "insomnia", "oversleeping", "napping", "sleep deprivation", "lack of sleep", "slept poorly", "haven't slept well", "poor sleep",
	"hunger", "fasting", "skipped meal", "skipped a meal",
	"dehydration", "thirst",
	"food", "chocolate", "cheese", "sugar",
	"caffeine", "coffee", "tea",
	"alcohol", "wine", "beer",
	"weather", "rain", "storm", "pressure", "heat", "humidity", "sun",
	"glare", "bright light", "loud noise",
	"screen", "computer", "phone",
	"smells", "perfume", "smoke",
	"hormones", "period", "menstruation", "cycle", "ovulation",
	"exercise", "gym",
	"travel", "jet lag",
)

var (
	triggerCauseSub = []string{"triggered", "caused", "due to", "because of", "made", "making", "from"}
	noiseRe         = regexp.MustCompile(`\b(?:loud\s+noise|noise)\b`)
	weatherKeys     = map[string]bool{"weather": true, "rain": true, "storm": true, "pressure": true, "heat": true, "humidity": true, "sun": true}
	weatherPainRe   = regexp.MustCompile(`\b(?:pain|hurts|ache|aching|stabbing|splitting|pulsing|throbbing|shooting|piercing|pounding)\b`)
	auraWordsRe     = regexp.MustCompile(`aura|visual|zigzag|spots`)
)

// localTriggers matches trigger candidates. Weather words are dropped unless
// a pain verb, a causal verb or vomiting ties them to the attack.
func localTriggers(t string, symptoms []string) []string {
	var raw []string
	for _, c := range triggerCandidates {
		if c.in(t) {
			raw = append(raw, c.text)
		}
	}
	causal := containsAny(t, triggerCauseSub)
	if causal {
		if strings.Contains(t, "bright light") {
			raw = append(raw, "photophobia")
		}
		if noiseRe.MatchString(t) {
			raw = append(raw, "phonophobia")
		}
	}
	keepWeather := causal || weatherPainRe.MatchString(t) || contains(symptoms, "Vomiting")

	kept := raw[:0]
	for _, k := range raw {
		if weatherKeys[k] && !keepWeather {
			continue
		}
		if vocab.LooksLikeTimeReference(k) {
			continue
		}
		kept = append(kept, k)
	}
	return vocab.MapTriggers(kept)
}

func contains(items []string, want string) bool {
	for _, s := range items {
		if s == want {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
