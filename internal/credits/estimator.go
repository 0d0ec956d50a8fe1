// Package credits performs client-side admission control: it guesses what
// a submission will cost before anything is sent to the backend.
package credits

import (
	"errors"
	"fmt"
	"math"

	"github.com/baronglock/Site-legendas/internal/domain"
)

const (
	// BytesPerMinute is the empirical 2 MiB ≈ one minute of media heuristic.
	BytesPerMinute = 2 * 1024 * 1024

	// ProvisionalURLMinutes is charged for URLs until the real duration is known.
	ProvisionalURLMinutes = 10
)

// ErrPlanRestriction is returned when the requested scope is not available
// on the user's plan. It is distinct from an insufficient balance.
var ErrPlanRestriction = errors.New("translation-only requires a paid plan")

// ErrInsufficientCredits is returned by Check when the balance cannot cover the cost.
var ErrInsufficientCredits = errors.New("insufficient credits")

// ErrUnknownScope is returned for scopes without a multiplier.
var ErrUnknownScope = errors.New("unknown processing scope")

// Options carries the non-media inputs of an estimate.
type Options struct {
	Scope                  domain.Scope
	TranslationOnlyAllowed bool
}

// Multiplier returns the credit multiplier of scope.
func Multiplier(scope domain.Scope) (float64, error) {
	switch scope {
	case domain.ScopeFull, "":
		return 1.0, nil
	case domain.ScopeTranscribe:
		return 0.5, nil
	case domain.ScopeTranslateOnly:
		return 0.3, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
}

// EstimateMinutes returns the billed minutes for in and whether the number
// is a provisional guess.
func EstimateMinutes(in domain.SubmissionInput) (int64, bool) {
	switch in.Mode {
	case domain.ModeURL:
		if in.URL != nil && in.URL.DurationSeconds > 0 {
			return int64(math.Ceil(in.URL.DurationSeconds / 60)), false
		}
		return ProvisionalURLMinutes, true
	default:
		size := in.Size()
		if size <= 0 {
			return 0, false
		}
		return (size + BytesPerMinute - 1) / BytesPerMinute, false
	}
}

// Estimate computes the cost of in against balance. It has no side effects.
func Estimate(in domain.SubmissionInput, opts Options, balance domain.UserBalance) (domain.CreditEstimate, error) {
	if opts.Scope == domain.ScopeTranslateOnly && !opts.TranslationOnlyAllowed {
		return domain.CreditEstimate{}, ErrPlanRestriction
	}

	multiplier, err := Multiplier(opts.Scope)
	if err != nil {
		return domain.CreditEstimate{}, err
	}

	minutes, provisional := EstimateMinutes(in)
	cost := float64(minutes) * multiplier

	return domain.CreditEstimate{
		EstimatedMinutes: minutes,
		Multiplier:       multiplier,
		CostCredits:      cost,
		Sufficient:       cost <= balance.MinutesRemaining,
		Provisional:      provisional,
	}, nil
}

// EstimateTranslation prices translating the existing subtitles of a job
// whose media runs durationSeconds. Only the translate multiplier applies.
func EstimateTranslation(durationSeconds float64, translationOnlyAllowed bool, balance domain.UserBalance) (domain.CreditEstimate, error) {
	if !translationOnlyAllowed {
		return domain.CreditEstimate{}, ErrPlanRestriction
	}
	multiplier, err := Multiplier(domain.ScopeTranslateOnly)
	if err != nil {
		return domain.CreditEstimate{}, err
	}

	minutes := int64(math.Ceil(durationSeconds / 60))
	if minutes < 1 {
		minutes = 1
	}
	cost := float64(minutes) * multiplier
	return domain.CreditEstimate{
		EstimatedMinutes: minutes,
		Multiplier:       multiplier,
		CostCredits:      cost,
		Sufficient:       cost <= balance.MinutesRemaining,
	}, nil
}

// Check returns ErrInsufficientCredits when est is not covered by the balance.
func Check(est domain.CreditEstimate) error {
	if est.Sufficient {
		return nil
	}
	return fmt.Errorf("%w: need %.1f minutes", ErrInsufficientCredits, est.CostCredits)
}
