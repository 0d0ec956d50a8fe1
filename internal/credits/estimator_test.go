package credits

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/baronglock/Site-legendas/internal/domain"
)

const mib = 1024 * 1024

func fileInput(size int64, scope domain.Scope) domain.SubmissionInput {
	in := domain.FileInput("/media/clip.mp4", scope)
	in.File.SizeBytes = size
	return in
}

// TestEstimateFreePlanInsufficient covers a 10 MiB upload against 3 minutes.
func TestEstimateFreePlanInsufficient(t *testing.T) {
	got, err := Estimate(fileInput(10*mib, domain.ScopeFull), Options{Scope: domain.ScopeFull}, domain.UserBalance{MinutesRemaining: 3})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if got.EstimatedMinutes != 5 || got.CostCredits != 5 {
		t.Fatalf("estimate = %+v, want 5 minutes / 5 credits", got)
	}
	if got.Sufficient {
		t.Fatal("expected insufficient estimate")
	}
}

// TestEstimatePaidTranscribeOnly covers a 4 MiB transcription-only upload.
func TestEstimatePaidTranscribeOnly(t *testing.T) {
	got, err := Estimate(fileInput(4*mib, domain.ScopeTranscribe), Options{Scope: domain.ScopeTranscribe, TranslationOnlyAllowed: true}, domain.UserBalance{MinutesRemaining: 50})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if got.EstimatedMinutes != 2 || got.CostCredits != 1 || got.Multiplier != 0.5 {
		t.Fatalf("estimate = %+v, want 2 minutes / 1 credit", got)
	}
	if !got.Sufficient {
		t.Fatal("expected sufficient estimate")
	}
}

// TestEstimateSufficiencyMatchesFormula checks the closed form over random inputs.
func TestEstimateSufficiencyMatchesFormula(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	scopes := []domain.Scope{domain.ScopeFull, domain.ScopeTranscribe, domain.ScopeTranslateOnly}

	for i := 0; i < 2000; i++ {
		size := rng.Int63n(400 * mib)
		scope := scopes[rng.Intn(len(scopes))]
		remaining := float64(rng.Intn(200))
		mult, _ := Multiplier(scope)

		got, err := Estimate(fileInput(size, scope), Options{Scope: scope, TranslationOnlyAllowed: true}, domain.UserBalance{MinutesRemaining: remaining})
		if err != nil {
			t.Fatalf("Estimate() error = %v", err)
		}

		minutes := (size + 2*mib - 1) / (2 * mib)
		want := float64(minutes)*mult <= remaining
		if got.Sufficient != want {
			t.Fatalf("size=%d scope=%s remaining=%v: sufficient = %v, want %v", size, scope, remaining, got.Sufficient, want)
		}
	}
}

// TestEstimateRoundsUpPartialMinutes checks the ceiling at boundaries.
func TestEstimateRoundsUpPartialMinutes(t *testing.T) {
	cases := []struct {
		size int64
		want int64
	}{
		{0, 0},
		{1, 1},
		{2 * mib, 1},
		{2*mib + 1, 2},
	}
	for _, tc := range cases {
		got, _ := EstimateMinutes(fileInput(tc.size, domain.ScopeFull))
		if got != tc.want {
			t.Fatalf("EstimateMinutes(%d) = %d, want %d", tc.size, got, tc.want)
		}
	}
}

// TestEstimateURLModeUsesProvisionalUntilDurationKnown checks url estimates.
func TestEstimateURLModeUsesProvisionalUntilDurationKnown(t *testing.T) {
	in := domain.URLInput("https://youtu.be/abc", domain.ScopeFull)
	got, err := Estimate(in, Options{Scope: domain.ScopeFull}, domain.UserBalance{MinutesRemaining: 100})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if !got.Provisional || got.EstimatedMinutes != ProvisionalURLMinutes {
		t.Fatalf("estimate = %+v, want provisional %d minutes", got, ProvisionalURLMinutes)
	}

	in.URL.DurationSeconds = 125
	got, err = Estimate(in, Options{Scope: domain.ScopeFull}, domain.UserBalance{MinutesRemaining: 100})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if got.Provisional || got.EstimatedMinutes != 3 {
		t.Fatalf("estimate = %+v, want 3 real minutes", got)
	}
}

// TestEstimateTranslateOnlyOnFreePlanIsRestricted checks the plan signal.
func TestEstimateTranslateOnlyOnFreePlanIsRestricted(t *testing.T) {
	_, err := Estimate(fileInput(mib, domain.ScopeTranslateOnly), Options{Scope: domain.ScopeTranslateOnly}, domain.UserBalance{MinutesRemaining: 1000})
	if !errors.Is(err, ErrPlanRestriction) {
		t.Fatalf("error = %v, want %v", err, ErrPlanRestriction)
	}
}

// TestEstimateUnknownScope rejects scopes without a multiplier.
func TestEstimateUnknownScope(t *testing.T) {
	_, err := Estimate(fileInput(mib, "dub"), Options{Scope: "dub"}, domain.UserBalance{})
	if !errors.Is(err, ErrUnknownScope) {
		t.Fatalf("error = %v, want %v", err, ErrUnknownScope)
	}
}

// TestCheckInsufficient maps an unaffordable estimate onto the sentinel.
func TestCheckInsufficient(t *testing.T) {
	if err := Check(domain.CreditEstimate{Sufficient: true}); err != nil {
		t.Fatalf("Check(sufficient) = %v, want nil", err)
	}
	if err := Check(domain.CreditEstimate{CostCredits: 25}); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("Check(insufficient) = %v, want %v", err, ErrInsufficientCredits)
	}
}

// TestEstimateTranslationUsesJobDuration prices an existing job at 0.3x.
func TestEstimateTranslationUsesJobDuration(t *testing.T) {
	got, err := EstimateTranslation(3590, true, domain.UserBalance{MinutesRemaining: 10})
	if err != nil {
		t.Fatalf("EstimateTranslation() error = %v", err)
	}
	if got.EstimatedMinutes != 60 || got.Multiplier != 0.3 || got.Provisional {
		t.Fatalf("estimate = %+v, want 60 minutes at 0.3", got)
	}
	if got.Sufficient {
		t.Fatalf("cost %.1f should exceed 10 remaining minutes", got.CostCredits)
	}

	short, err := EstimateTranslation(8, true, domain.UserBalance{MinutesRemaining: 10})
	if err != nil || short.EstimatedMinutes != 1 || !short.Sufficient {
		t.Fatalf("short estimate = %+v err = %v", short, err)
	}
}

// TestEstimateTranslationPlanRestriction refuses plans without translation-only.
func TestEstimateTranslationPlanRestriction(t *testing.T) {
	_, err := EstimateTranslation(600, false, domain.UserBalance{MinutesRemaining: 100})
	if !errors.Is(err, ErrPlanRestriction) {
		t.Fatalf("error = %v, want ErrPlanRestriction", err)
	}
}
