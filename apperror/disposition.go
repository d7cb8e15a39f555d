package apperror

// Disposition tells presentation code how a failure should be shown.
type Disposition string

const (
	// DispositionActionable failures can be fixed by the user (retry, fix input).
	DispositionActionable Disposition = "actionable"

	// DispositionTransient failures were already retried automatically.
	DispositionTransient Disposition = "transient"

	// DispositionNonActionable failures are shown with the raw message for diagnostics only.
	DispositionNonActionable Disposition = "non_actionable"
)

// Disposition returns how the error should be presented to a user.
func (e *Error) Disposition() Disposition {
	switch e.kind {
	case KindAuth, KindValidation:
		return DispositionActionable
	case KindNetwork:
		return DispositionTransient
	default:
		return DispositionNonActionable
	}
}
