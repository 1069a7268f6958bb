package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/xeipuuv/gojsonschema"
)

// Special wrapper for errors that should be treated as unretriable terminal
// failures rather than transient I/O errors.
type UnretriableError struct{ error }

// Unretriable wraps err in a backoff.PermanentError inside UnretriableError,
// so a backoff.Retry loop stops on it and IsUnretriable still matches.
func Unretriable(err error) error {
	return UnretriableError{backoff.Permanent(err)}
}

func (e UnretriableError) Unwrap() error {
	return e.error
}

// IsUnretriable returns whether the given error is an unretriable error.
func IsUnretriable(err error) bool {
	return errors.As(err, &UnretriableError{})
}

type ObjectNotFoundError struct {
	msg   string
	cause error
}

func (e ObjectNotFoundError) Error() string {
	return e.msg
}

func (e ObjectNotFoundError) Unwrap() error {
	return e.cause
}

func NewObjectNotFoundError(msg string, cause error) error {
	if cause != nil {
		msg = fmt.Sprintf("ObjectNotFoundError: %s: %s", msg, cause)
	} else {
		msg = fmt.Sprintf("ObjectNotFoundError: %s", msg)
	}
	// every not found is unretriable, but not a backoff.PermanentError
	return UnretriableError{ObjectNotFoundError{msg: msg, cause: cause}}
}

// IsObjectNotFound checks if the error is an ObjectNotFoundError.
func IsObjectNotFound(err error) bool {
	return errors.As(err, &ObjectNotFoundError{})
}

// SchemaValidationError formats a gojsonschema result into a single error,
// the same shape the teacher used for HTTP body validation. Nothing in this
// module calls it: feedback payloads are checked with validator struct tags.
func SchemaValidationError(where string, results []gojsonschema.ResultError) error {
	sb := strings.Builder{}
	sb.WriteString("schema validation error in ")
	sb.WriteString(where)
	sb.WriteString(" ")
	for i := 0; i < len(results); i++ {
		sb.WriteString(results[i].String())
		sb.WriteString(" ")
	}
	return Unretriable(errors.New(strings.TrimSpace(sb.String())))
}

// GateKind names which quality gate produced a GateError.
type GateKind string

const (
	GateHook    GateKind = "FAILED_HOOK"
	GateQuality GateKind = "FAILED_QUALITY_GATE"
)

// GateError carries a pipeline-gate rejection: a hook-selection or
// retention-judge failure with a reason and the scoring details behind it.
type GateError struct {
	Kind    GateKind
	Reason  string
	Details map[string]interface{}
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func NewGateError(kind GateKind, reason string, details map[string]interface{}) *GateError {
	return &GateError{Kind: kind, Reason: reason, Details: details}
}

// AsGateError reports whether err is a GateError and returns it.
func AsGateError(err error) (*GateError, bool) {
	var g *GateError
	if errors.As(err, &g) {
		return g, true
	}
	return nil, false
}

// Sentinel error kinds from the error-handling design (spec §7). Wrapping
// errors should use fmt.Errorf("...: %w", ErrX) so errors.Is still matches.
var (
	ErrFfmpegMissing                 = errors.New("ffmpeg_missing")
	ErrFfprobeMissing                = errors.New("ffprobe_missing")
	ErrDownloadFailed                = errors.New("download_failed")
	ErrInputFileMissingAfterDownload = errors.New("input_file_missing_after_download")
	ErrInputFileEmptyAfterDownload   = errors.New("input_file_empty_after_download")
	ErrDurationUnavailable           = errors.New("duration_unavailable")
	ErrRenderFailed                  = errors.New("render_failed")
	ErrOutputFileMissingAfterRender  = errors.New("output_file_missing_after_render")
	ErrOutputFileEmptyAfterRender    = errors.New("output_file_empty_after_render")
	ErrOutputUploadMissing           = errors.New("output_upload_missing")
	ErrNoRenderableSegments          = errors.New("no_renderable_segments")
	ErrQueueCanceledByUser           = errors.New("queue_canceled_by_user")
	ErrInvalidPreferredHook          = errors.New("invalid_preferred_hook")
	ErrHookStageComplete             = errors.New("hook_stage_complete")
	ErrHookCandidatesNotReady        = errors.New("hook_candidates_not_ready")
	ErrHookUpdateConflict            = errors.New("hook_update_conflict")
	ErrJobUpdateConflict             = errors.New("job_update_conflict")
	ErrInvalidJobID                  = errors.New("invalid_job_id")
	ErrNotFound                      = errors.New("not_found")
	ErrCannotCancel                  = errors.New("cannot_cancel")
)

// EditedRenderFailed wraps ErrRenderFailed with a reason, producing
// "edited_render_failed:<reason>" as required by §7.
func EditedRenderFailed(reason string) error {
	return fmt.Errorf("edited_render_failed:%s: %w", reason, ErrRenderFailed)
}

// InvalidStatusTransition builds the "invalid_status_transition:<from>-><to>" error.
func InvalidStatusTransition(from, to string) error {
	return fmt.Errorf("invalid_status_transition:%s->%s", from, to)
}

// PlanLimitError models a limit/plan error from the external billing collaborator.
type PlanLimitError struct {
	Code         string // RENDER_LIMIT_REACHED | MINUTES_LIMIT_REACHED | PLAN_LIMIT_EXCEEDED
	Feature      string
	RequiredPlan string
}

func (e *PlanLimitError) Error() string {
	return fmt.Sprintf("%s: feature=%s requiredPlan=%s", e.Code, e.Feature, e.RequiredPlan)
}
