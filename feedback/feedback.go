package feedback

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxHistoryEntries bounds how many feedback records a job's analysis
// retains (spec §4.11).
const MaxHistoryEntries = 40

var validate = validator.New()

// PlatformAnalyticsPayload is the first of three accepted shapes: raw
// platform metrics reported after a clip has been live for a while
// (spec §4.11).
type PlatformAnalyticsPayload struct {
	WatchPercent      float64 `json:"watchPercent" validate:"gte=0,lte=1"`
	HookHoldPercent   float64 `json:"hookHoldPercent" validate:"gte=0,lte=1"`
	CompletionPercent float64 `json:"completionPercent" validate:"gte=0,lte=1"`
	RewatchRate       float64 `json:"rewatchRate" validate:"gte=0"`
	CTR               float64 `json:"ctr" validate:"gte=0"`
	SharesPerView     float64 `json:"sharesPerView" validate:"gte=0"`
	LikesPerView      float64 `json:"likesPerView" validate:"gte=0"`
	CommentsPerView   float64 `json:"commentsPerView" validate:"gte=0"`
}

// ManualScorePayload is an internal reviewer score, 0-100.
type ManualScorePayload struct {
	Score float64 `json:"score" validate:"gte=0,lte=100"`
}

// CorrectionCategory is a creator-facing complaint/compliment shorthand
// (spec §4.11).
type CorrectionCategory string

const (
	CorrectionBadHook    CorrectionCategory = "bad_hook"
	CorrectionTooFast    CorrectionCategory = "too_fast"
	CorrectionTooGeneric CorrectionCategory = "too_generic"
	CorrectionGreatEdit  CorrectionCategory = "great_edit"
)

// CorrectionPayload carries a creator-selected category instead of raw
// metrics; IngestCorrection maps it to synthetic metrics via a fixed table.
type CorrectionPayload struct {
	Category CorrectionCategory `json:"category" validate:"required,oneof=bad_hook too_fast too_generic great_edit"`
}

// correctionMetricTable maps each creator-correction category to the
// synthetic metric record it implies (spec §4.11: "mapped to synthetic
// metrics via a fixed table").
var correctionMetricTable = map[CorrectionCategory]RetentionFeedback{
	CorrectionBadHook:    {WatchPercent: 0.25, HookHoldPercent: 0.15, CompletionPercent: 0.3, ManualScore: 25},
	CorrectionTooFast:    {WatchPercent: 0.4, HookHoldPercent: 0.55, CompletionPercent: 0.35, ManualScore: 40},
	CorrectionTooGeneric: {WatchPercent: 0.35, HookHoldPercent: 0.45, CompletionPercent: 0.4, ManualScore: 35},
	CorrectionGreatEdit:  {WatchPercent: 0.85, HookHoldPercent: 0.85, CompletionPercent: 0.85, ManualScore: 90},
}

// RetentionFeedback is the normalized record persisted on the job's
// analysis, regardless of which payload shape produced it (spec §4.11).
type RetentionFeedback struct {
	Source            string    `json:"source"` // platform|manual|correction
	WatchPercent      float64   `json:"watchPercent"`
	HookHoldPercent   float64   `json:"hookHoldPercent"`
	CompletionPercent float64   `json:"completionPercent"`
	RewatchRate       float64   `json:"rewatchRate"`
	CTR               float64   `json:"ctr"`
	SharesPerView     float64   `json:"sharesPerView"`
	LikesPerView      float64   `json:"likesPerView"`
	CommentsPerView   float64   `json:"commentsPerView"`
	ManualScore       float64   `json:"manualScore"`
	Category          string    `json:"category,omitempty"`
	RecordedAt        time.Time `json:"recordedAt"`
}

// IngestPlatformAnalytics validates and normalizes a platform-analytics
// payload (spec §4.11).
func IngestPlatformAnalytics(p PlatformAnalyticsPayload, now time.Time) (RetentionFeedback, error) {
	if err := validate.Struct(p); err != nil {
		return RetentionFeedback{}, fmt.Errorf("invalid platform analytics payload: %w", err)
	}
	return RetentionFeedback{
		Source:            "platform",
		WatchPercent:      clamp01(p.WatchPercent),
		HookHoldPercent:   clamp01(p.HookHoldPercent),
		CompletionPercent: clamp01(p.CompletionPercent),
		RewatchRate:       clamp01(p.RewatchRate),
		CTR:               clamp01(p.CTR),
		SharesPerView:     clamp01(p.SharesPerView),
		LikesPerView:      clamp01(p.LikesPerView),
		CommentsPerView:   clamp01(p.CommentsPerView),
		RecordedAt:        now,
	}, nil
}

// IngestManualScore validates and normalizes an internal reviewer score
// (spec §4.11).
func IngestManualScore(p ManualScorePayload, now time.Time) (RetentionFeedback, error) {
	if err := validate.Struct(p); err != nil {
		return RetentionFeedback{}, fmt.Errorf("invalid manual score payload: %w", err)
	}
	return RetentionFeedback{
		Source:      "manual",
		ManualScore: clampScore(p.Score),
		RecordedAt:  now,
	}, nil
}

// IngestCorrection validates a creator-correction category and maps it to
// synthetic metrics via the fixed table (spec §4.11).
func IngestCorrection(p CorrectionPayload, now time.Time) (RetentionFeedback, error) {
	if err := validate.Struct(p); err != nil {
		return RetentionFeedback{}, fmt.Errorf("invalid correction payload: %w", err)
	}
	mapped, ok := correctionMetricTable[p.Category]
	if !ok {
		return RetentionFeedback{}, fmt.Errorf("unmapped correction category: %s", p.Category)
	}
	mapped.Source = "correction"
	mapped.Category = string(p.Category)
	mapped.RecordedAt = now
	return mapped, nil
}

// AppendToHistory appends a new feedback record and trims the history to
// MaxHistoryEntries most-recent entries (spec §4.11).
func AppendToHistory(history []RetentionFeedback, entry RetentionFeedback) []RetentionFeedback {
	history = append(history, entry)
	if len(history) > MaxHistoryEntries {
		history = history[len(history)-MaxHistoryEntries:]
	}
	return history
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

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
