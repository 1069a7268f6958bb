package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/livepeer/retention-engine/model"
)

func TestParseSRT(t *testing.T) {
	content := "1\n00:00:01,000 --> 00:00:03,500\nWait, here's why this actually matters.\n\n2\n00:00:04,000 --> 00:00:06,000\nUm, you know, it's kind of free.\n"
	path := filepath.Join(t.TempDir(), "cues.srt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cues, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].CuriosityTrigger <= 0 {
		t.Errorf("expected curiosity trigger > 0 for first cue, got %v", cues[0].CuriosityTrigger)
	}
	if cues[1].FillerDensity <= 0 {
		t.Errorf("expected filler density > 0 for second cue, got %v", cues[1].FillerDensity)
	}
}

func TestCuesToSecondIndex(t *testing.T) {
	cues := []model.TranscriptCue{{Start: 1, End: 3}, {Start: 5, End: 5.5}}
	// sanity check the index spans inclusive seconds
	idx := CuesToSecondIndex(cues)
	for _, sec := range []int{1, 2, 3, 5} {
		if _, ok := idx[sec]; !ok {
			t.Errorf("expected second %d in the index", sec)
		}
	}
	if _, ok := idx[4]; ok {
		t.Error("expected second 4 to be absent from the index")
	}
	if len(CuesToSecondIndex(nil)) != 0 {
		t.Fatalf("expected empty index for nil cues")
	}
}
