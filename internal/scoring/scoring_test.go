package scoring

import "testing"

func TestScoreHappyPath(t *testing.T) {
	// Scenario 1 from spec.md §8: f=0.2, streak 1, mult 1.0, no bonus.
	r := Score(true, 0.2, 0, 1.0, false)
	if r.Points != 900 {
		t.Fatalf("expected 900 points, got %d", r.Points)
	}
	if r.NewStreak != 1 {
		t.Fatalf("expected streak 1, got %d", r.NewStreak)
	}
}

func TestScoreIncorrectResetsStreakAndZeroPoints(t *testing.T) {
	r := Score(false, 0.1, 4, 1.0, false)
	if r.Points != 0 {
		t.Fatalf("expected 0 points for incorrect answer, got %d", r.Points)
	}
	if r.NewStreak != 0 {
		t.Fatalf("expected streak reset to 0, got %d", r.NewStreak)
	}
}

func TestScoreStreakTiers(t *testing.T) {
	// Scenario 3 from spec.md §8: three correct at f=0 in a row.
	cases := []struct {
		oldStreak int
		want      int
	}{
		{0, 1000}, // new streak 1 -> x1.0
		{1, 1000}, // new streak 2 -> x1.0
		{2, 1500}, // new streak 3 -> x1.5
	}
	for _, c := range cases {
		r := Score(true, 0, c.oldStreak, 1.0, false)
		if r.Points != c.want {
			t.Errorf("oldStreak=%d: want %d points, got %d", c.oldStreak, c.want, r.Points)
		}
	}

	// Fourth question wrong resets streak; fifth correct at f=0 scores 1000.
	wrong := Score(false, 0, 3, 1.0, false)
	if wrong.NewStreak != 0 {
		t.Fatalf("expected streak reset, got %d", wrong.NewStreak)
	}
	fifth := Score(true, 0, wrong.NewStreak, 1.0, false)
	if fifth.Points != 1000 {
		t.Fatalf("expected 1000 points after streak reset, got %d", fifth.Points)
	}
}

func TestScoreBonusRound(t *testing.T) {
	// Scenario 4: bonus question, f=0.5: base 750, x2 bonus -> 1500.
	r := Score(true, 0.5, 0, 1.0, true)
	if r.Points != 1500 {
		t.Fatalf("expected 1500 points, got %d", r.Points)
	}
}

func TestScorePowerUpDoublePoints(t *testing.T) {
	// Scenario 5: DoublePoints then correct at f=0 -> 2000.
	r := Score(true, 0, 0, 2.0, false)
	if r.Points != 2000 {
		t.Fatalf("expected 2000 points, got %d", r.Points)
	}
	if r.ReportedMultiplier != 2.0 {
		t.Fatalf("expected reported multiplier 2.0, got %v", r.ReportedMultiplier)
	}
}

func TestScoreEarlyAllAnswered(t *testing.T) {
	// Scenario 2: 10s limit, A at t=1 (f=0.1 -> 950), B at t=4 (f=0.4 -> 800).
	a := Score(true, 0.1, 0, 1.0, false)
	if a.Points != 950 {
		t.Fatalf("expected 950, got %d", a.Points)
	}
	b := Score(true, 0.4, 0, 1.0, false)
	if b.Points != 800 {
		t.Fatalf("expected 800, got %d", b.Points)
	}
}

func TestLatencyFractionClamps(t *testing.T) {
	if got := LatencyFraction(-5, 10); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := LatencyFraction(15, 10); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := LatencyFraction(2, 10); got != 0.2 {
		t.Fatalf("expected 0.2, got %v", got)
	}
}
