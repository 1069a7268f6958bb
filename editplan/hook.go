package editplan

import (
	"math"
	"strings"

	"github.com/livepeer/retention-engine/config"
	"github.com/livepeer/retention-engine/model"
)

var pronounOpeners = []string{"it", "this", "that", "he", "she", "they", "and", "but", "so"}

// HookAudit is the detailed audit breakdown behind a candidate's AuditScore
// (spec §4.6: "Audit yields {understandable, curiosity, payoff,
// contextPenalty, auditScore, passed}").
type HookAudit struct {
	Understandable float64
	Curiosity      float64
	Payoff         float64
	ContextPenalty float64
	AuditScore     float64
	Passed         bool
}

// RunHookAudit scores a candidate's opening for comprehensibility without
// prior context, curiosity pull, and payoff, penalizing pronoun/connective
// openings and missing terminal punctuation (spec §4.6).
func RunHookAudit(cue model.TranscriptCue, candidateScore float64) HookAudit {
	text := strings.TrimSpace(cue.Text)
	lower := strings.ToLower(text)
	firstWord := firstWordOf(lower)

	contextPenalty := 0.0
	for _, p := range pronounOpeners {
		if firstWord == p {
			contextPenalty += 0.25
			break
		}
	}
	if text == "" || !strings.ContainsAny(text[len(text)-1:], ".!?") {
		contextPenalty += 0.1
	}
	contextPenalty = math.Min(contextPenalty, 0.5)

	understandable := clamp01(1 - contextPenalty)
	curiosity := clamp01(cue.CuriosityTrigger + 0.3*candidateScore)
	payoff := clamp01(cue.KeywordIntensity + 0.4*candidateScore)

	auditScore := clamp01(0.4*understandable + 0.3*curiosity + 0.3*payoff)
	return HookAudit{
		Understandable: understandable,
		Curiosity:      curiosity,
		Payoff:         payoff,
		ContextPenalty: contextPenalty,
		AuditScore:     auditScore,
		Passed:         auditScore >= 0.5,
	}
}

func firstWordOf(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ",.!?;:")
}

// candidateDurations mirrors the spec's {5,6,7,8}s candidate set.
var candidateDurations = []float64{5, 6, 7, 8}

// SearchHookCandidates partitions [0,duration] into numSections sections and
// evaluates candidate windows aligned to sentence boundaries in each,
// scoring and auditing every candidate (spec §4.6).
func SearchHookCandidates(windows []model.EngagementWindow, cues []model.TranscriptCue, duration float64) []model.HookCandidate {
	if duration <= 0 {
		return nil
	}
	numSections := clampInt(int(duration/20), 3, 8)
	sectionLen := duration / float64(numSections)

	var candidates []model.HookCandidate
	for s := 0; s < numSections; s++ {
		sectionStart := float64(s) * sectionLen
		sectionEnd := sectionStart + sectionLen

		for _, cue := range cuesStartingIn(cues, sectionStart, sectionEnd) {
			for _, dur := range candidateDurations {
				if cue.Start+dur > duration {
					continue
				}
				candidate := scoreHookCandidate(windows, cues, cue, dur)
				candidates = append(candidates, candidate)
			}
		}
	}
	return candidates
}

func cuesStartingIn(cues []model.TranscriptCue, start, end float64) []model.TranscriptCue {
	var out []model.TranscriptCue
	for _, c := range cues {
		if c.Start >= start && c.Start < end {
			out = append(out, c)
		}
	}
	return out
}

func scoreHookCandidate(windows []model.EngagementWindow, cues []model.TranscriptCue, cue model.TranscriptCue, dur float64) model.HookCandidate {
	local := windowsInRange(windows, cue.Start, cue.Start+dur)
	var hookSum, speechSum, emotionSum float64
	for _, w := range local {
		hookSum += w.HookScore
		speechSum += w.SpeechIntensity
		emotionSum += w.EmotionIntensity
	}
	n := math.Max(1, float64(len(local)))
	avgHook, avgSpeech, avgEmotion := hookSum/n, speechSum/n, emotionSum/n

	durationAlignment := 1 - math.Abs(dur-8)/8

	rawScore := clamp01(0.45*avgHook + 0.2*avgSpeech + 0.15*avgEmotion + 0.1*durationAlignment + 0.1*cue.CuriosityTrigger)

	audit := RunHookAudit(cue, rawScore)
	finalScore := clamp01(rawScore - audit.ContextPenalty)

	return model.HookCandidate{
		Start:       cue.Start,
		Duration:    dur,
		Score:       finalScore,
		AuditScore:  audit.AuditScore,
		AuditPassed: audit.Passed,
		Text:        cue.Text,
		Reason:      "sentence-aligned candidate",
	}
}

// ChooseHook selects the best section-winner via a confidence faceoff using
// calibrated weights, preferring audit-passing candidates; synthesizes a
// teaser hook from the strongest payoff window if none pass (spec §4.6,
// §4.12).
func ChooseHook(candidates []model.HookCandidate, weights HookFaceoffWeights) model.HookCandidate {
	if len(candidates) == 0 {
		return model.HookCandidate{Duration: config.HookMinSeconds, Synthetic: true, Reason: "no candidates available, synthetic fallback"}
	}

	best := candidates[0]
	bestConfidence := -1.0
	var bestPassing model.HookCandidate
	havePassing := false

	for _, c := range candidates {
		confidence := weights.Score * c.Score
		confidence += weights.Audit * c.AuditScore
		if confidence > bestConfidence {
			bestConfidence = confidence
			best = c
		}
		if c.AuditPassed && (!havePassing || confidence > weights.Score*bestPassing.Score+weights.Audit*bestPassing.AuditScore) {
			bestPassing = c
			havePassing = true
		}
	}

	if havePassing {
		return bestPassing
	}
	best.Synthetic = true
	best.Reason = "strongest payoff window, no candidate passed audit"
	return best
}

// HookFaceoffWeights are the calibrated weights from §4.12's confidence
// formula (0.7 score / 0.3 audit by default, tunable by CalibrationStore).
type HookFaceoffWeights struct {
	Score float64
	Audit float64
}

func DefaultHookFaceoffWeights() HookFaceoffWeights {
	return HookFaceoffWeights{Score: 0.7, Audit: 0.3}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
