package signals

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct {
		v, lo, hi, want float64
	}{
		{-100, -60, 0, -60},
		{10, -60, 0, 0},
		{-30, -60, 0, -30},
	}
	for _, c := range cases {
		if got := clamp(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("clamp(%v,%v,%v) = %v, want %v", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

func TestAudioRMSParsingRegexes(t *testing.T) {
	line := "[Parsed_ametadata_1 @ 0x0] lavfi.astats.Overall.RMS_level=-23.4 pts_time:1.5"
	if m := ptsTimeRe.FindStringSubmatch(line); m == nil || m[1] != "1.5" {
		t.Fatalf("expected pts_time match, got %v", m)
	}
	if m := rmsLevelRe.FindStringSubmatch(line); m == nil || m[1] != "-23.4" {
		t.Fatalf("expected RMS_level match, got %v", m)
	}
}

func TestFaceBoxRegex(t *testing.T) {
	line := "[facedetect @ 0x0] x:120 y:80 w:200 h:220"
	m := faceBoxRe.FindStringSubmatch(line)
	if m == nil {
		t.Fatal("expected face box match")
	}
	if m[1] != "120" || m[3] != "200" {
		t.Fatalf("unexpected face box capture: %v", m)
	}
}
