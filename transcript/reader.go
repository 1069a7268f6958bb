package transcript

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/livepeer/retention-engine/model"
)

// curiosityWords/fillerWords/keywords drive the per-cue scoring fusion
// consumed by the EngagementModel's transcript-aware terms (spec §4.4).
var curiosityWords = []string{"but", "secret", "actually", "surprising", "wait", "never", "turns out", "here's why"}
var fillerWords = []string{"um", "uh", "like", "you know", "sort of", "kind of", "basically"}
var keywordBoosts = []string{"free", "new", "now", "you", "how", "why", "best", "mistake", "easy"}

// ReadFile loads an SRT or VTT file, dispatching on extension.
func ReadFile(path string) ([]model.TranscriptCue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript %q: %w", path, err)
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".vtt") {
		return parseVTT(f)
	}
	return parseSRT(f)
}

var srtTimeRe = regexp.MustCompile(`(\d+):(\d+):(\d+)[,.](\d+)\s*-->\s*(\d+):(\d+):(\d+)[,.](\d+)`)

// parseSRT is a small line-oriented state machine: index line, timing line,
// one or more text lines, blank separator.
func parseSRT(f *os.File) ([]model.TranscriptCue, error) {
	scanner := bufio.NewScanner(f)
	var cues []model.TranscriptCue
	var textLines []string
	var start, end float64
	haveTiming := false

	flush := func() {
		if haveTiming && len(textLines) > 0 {
			text := strings.Join(textLines, " ")
			cues = append(cues, scoreCue(start, end, text))
		}
		textLines = nil
		haveTiming = false
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if m := srtTimeRe.FindStringSubmatch(line); m != nil {
			start = parseSRTTimestamp(m[1], m[2], m[3], m[4])
			end = parseSRTTimestamp(m[5], m[6], m[7], m[8])
			haveTiming = true
			continue
		}
		if isAllDigits(line) && !haveTiming {
			continue // index line
		}
		textLines = append(textLines, line)
	}
	flush()
	return cues, scanner.Err()
}

func parseVTT(f *os.File) ([]model.TranscriptCue, error) {
	scanner := bufio.NewScanner(f)
	var cues []model.TranscriptCue
	var textLines []string
	var start, end float64
	haveTiming := false

	flush := func() {
		if haveTiming && len(textLines) > 0 {
			cues = append(cues, scoreCue(start, end, strings.Join(textLines, " ")))
		}
		textLines = nil
		haveTiming = false
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if line == "WEBVTT" {
			continue
		}
		if m := srtTimeRe.FindStringSubmatch(line); m != nil {
			start = parseSRTTimestamp(m[1], m[2], m[3], m[4])
			end = parseSRTTimestamp(m[5], m[6], m[7], m[8])
			haveTiming = true
			continue
		}
		textLines = append(textLines, line)
	}
	flush()
	return cues, scanner.Err()
}

func parseSRTTimestamp(h, m, s, ms string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	millis, _ := strconv.Atoi(ms)
	return float64(hh*3600+mm*60+ss) + float64(millis)/1000.0
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// scoreCue computes keywordIntensity/curiosityTrigger/fillerDensity for one
// cue, each normalized to roughly [0,1] by word-count fraction (spec §4.4).
func scoreCue(start, end float64, text string) model.TranscriptCue {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	wordCount := float64(len(words))
	if wordCount == 0 {
		wordCount = 1
	}

	keywordHits := countHits(lower, keywordBoosts)
	curiosityHits := countHits(lower, curiosityWords)
	fillerHits := countHits(lower, fillerWords)

	return model.TranscriptCue{
		Start:            start,
		End:              end,
		Text:             text,
		KeywordIntensity: clamp01(float64(keywordHits) / wordCount),
		CuriosityTrigger: clamp01(float64(curiosityHits) / wordCount * 2),
		FillerDensity:    clamp01(float64(fillerHits) / wordCount),
	}
}

func countHits(text string, terms []string) int {
	count := 0
	for _, term := range terms {
		count += strings.Count(text, term)
	}
	return count
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CuesToSecondIndex maps cue-level scores onto an integer-second index, used
// by the EngagementModel to fuse transcript terms onto its window grid
// (spec §4.4: "keyword/curiosity/filler density mapped onto the same second
// index").
func CuesToSecondIndex(cues []model.TranscriptCue) map[int]model.TranscriptCue {
	out := map[int]model.TranscriptCue{}
	for _, cue := range cues {
		for sec := int(cue.Start); sec < int(cue.End)+1; sec++ {
			out[sec] = cue
		}
	}
	return out
}
