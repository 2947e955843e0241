package entitle

import "testing"

func TestFreePlanDailyLimit(t *testing.T) {
	g := NewGate(PlanFree)

	if !g.CanUseLiveFeatures() {
		t.Fatal("free plan should allow the first live match")
	}
	if g.Remaining() != 1 {
		t.Errorf("remaining = %d, want 1", g.Remaining())
	}

	if err := g.ConsumeLiveMatch(); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if g.CanUseLiveFeatures() {
		t.Error("free plan should be exhausted after one match")
	}
	if err := g.ConsumeLiveMatch(); err == nil {
		t.Error("second consume should fail")
	}
	if g.Remaining() != 0 {
		t.Errorf("remaining = %d, want 0", g.Remaining())
	}
}

func TestPremiumPlanUnlimited(t *testing.T) {
	g := NewGate(PlanPremium)

	for i := 0; i < 10; i++ {
		if err := g.ConsumeLiveMatch(); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	if !g.CanUseLiveFeatures() {
		t.Error("premium plan should never exhaust")
	}
	if g.Remaining() != -1 {
		t.Errorf("remaining = %d, want -1", g.Remaining())
	}
}

func TestResetDaily(t *testing.T) {
	g := NewGate(PlanFree)

	if err := g.ConsumeLiveMatch(); err != nil {
		t.Fatalf("consume: %v", err)
	}
	g.ResetDaily()

	if !g.CanUseLiveFeatures() {
		t.Error("reset should restore the daily allowance")
	}
	if g.Remaining() != 1 {
		t.Errorf("remaining = %d, want 1", g.Remaining())
	}
}

func TestStatus(t *testing.T) {
	g := NewGate(PlanFree)
	_ = g.ConsumeLiveMatch()

	st := g.Status()
	if st.Plan != PlanFree || st.UsedToday != 1 || st.Remaining != 0 {
		t.Errorf("status = %+v", st)
	}
	if !st.LiveFeatures || st.DailyLiveMatches != 1 {
		t.Errorf("limits in status = %+v", st)
	}
}
