package extract

import (
	"strings"
	"time"
)

const analyzerSystemPrompt = `You are an assistant that converts migraine voice notes into structured episode data. Respond with JSON only.`

const analyzerPromptTemplate = `You are extracting migraine episode data from a voice transcript. Be EXTREMELY CONSERVATIVE - only extract information that is EXPLICITLY stated.

CRITICAL RULES:
1. ONLY extract what the user EXPLICITLY mentions - NO guessing, NO inference
2. Words like "attack", "migraine", "headache" are NOT triggers - they describe the condition itself
3. AURA RULE: If the user mentions "aura", set "aura" to true AND add "aura" to the "symptoms" array
4. For triggers: ONLY extract if the user says "triggered by", "caused by", "because of", "due to" or explicitly mentions: stress, food, weather, sleep, hormones, light, screen time, sound, dehydration
   - If the user mentions "sensitivity to" followed by light-related words (glare, light, bright, sun), extract "light" as a trigger
5. For start_time: Extract ANY time reference like "last night 9pm", "yesterday morning", "3 hours ago", "since 7 am", "this morning", "this afternoon", "tonight"
   - If the user only says "since" with an incomplete time, return null (don't guess the time)
   - "last night" = {yesterday} at 22:00
   - "last night at 9pm" = {yesterday} at 21:00
   - "yesterday afternoon" = {yesterday} at 14:00
   - "this morning" = {today} at 09:00
   - "this morning 7am" = {today} at 07:00 (use the specific time mentioned)
   - "since 7 am" = {today} at 07:00
   - "this afternoon" = {today} at 14:00
   - "tonight" = {today} at 20:00
   - "3 hours ago" = calculate from the current time: {now}
6. INTENSITY: When the user answers with a number ("about 9", "it's 7", "around 5"), extract the NUMBER. Also convert:
   - Ordinals: "sixth" -> 6, "seventh" -> 7, "eighth" -> 8, "ninth" -> 9
   - Words: "seven" -> 7, "eight" -> 8, "nine" -> 9
   - Adjectives: "mild" -> 2, "moderate" -> 5, "throbbing" -> 6, "pounding" -> 7, "severe" -> 8, "splitting" -> 9, "unbearable" -> 10, "excruciating" -> 10
   - Don't confuse intensity with time references
7. For pain_location: Extract if the user mentions left/right (side, temple), back of head/neck/occipital, front/forehead/temple ("for head" and "fore head" are speech-to-text errors for forehead), both sides/bilateral/whole head
8. For symptoms: ONLY extract if the user mentions nausea, vomiting, aura, light sensitivity, sound sensitivity, dizziness, blurred vision
   - Do NOT infer symptoms from pain location
   - Do NOT return "none" or "no symptoms"; return null instead
9. If you're not 100% certain, set the field to null

INVALID TRIGGERS (never extract): "attack", "migraine", "headache", "pain", and time references like "last night" or "yesterday".

Return JSON with these fields (null if not explicitly mentioned):
{
  "start_time": "ISO 8601 timestamp or null",
  "intensity": "integer 0-10 or null",
  "pain_location": "left|right|bilateral|frontal|occipital|other or null",
  "aura": "true|false|null",
  "symptoms": ["array of symptom strings"] or null,
  "triggers": ["array of trigger strings"] or null,
  "notes": "brief summary or null",
  "confidence_breakdown": {
    "start_time": 0.9,
    "intensity": 0.85,
    "pain_location": 0.9,
    "triggers": 0.7,
    "symptoms": 0.8
  }
}

CONFIDENCE SCORES:
- 0.9-1.0 for explicit, unambiguous mentions (e.g. "back of my head")
- 0.7-0.89 for clear but less specific mentions (e.g. just "back")
- 0.5-0.69 for ambiguous or partially explicit mentions
- 0.0-0.49 for very unclear extractions

Reference date: {today} (timezone {offset})
Current time: {now}

Transcript:
"""{transcript}"""

Remember: Be EXTREMELY conservative. If in doubt, set to null. Better to ask the user than to guess incorrectly.`

// buildAnalyzerPrompt fills the extraction prompt for a transcript observed
// at now.
func buildAnalyzerPrompt(transcript string, now time.Time) string {
	r := strings.NewReplacer(
		"{today}", now.Format(time.DateOnly),
		"{yesterday}", now.AddDate(0, 0, -1).Format(time.DateOnly),
		"{offset}", now.Format("-07:00"),
		"{now}", now.Format(time.DateTime),
		"{transcript}", transcript,
	)
	return r.Replace(analyzerPromptTemplate)
}
