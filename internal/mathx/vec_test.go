package mathx

import (
	"math"
	"testing"
)

func TestStepTowards(t *testing.T) {
	from := Vec3{}
	to := Vec3{X: 3, Z: 4}
	got := StepTowards(from, to, 1)
	if math.Abs(got.Len()-1) > 1e-9 {
		t.Fatalf("step length: %v", got.Len())
	}
	if math.Abs(got.X-0.6) > 1e-9 || math.Abs(got.Z-0.8) > 1e-9 {
		t.Fatalf("direction: %+v", got)
	}
	if StepTowards(from, to, 10) != to {
		t.Fatalf("short distance should land on target")
	}
	if StepTowards(to, to, 1) != to {
		t.Fatalf("zero distance should stay put")
	}
}

func TestClampAndMod(t *testing.T) {
	if ClampInt(-3, 0, 2) != 0 || ClampInt(9, 0, 2) != 2 || ClampInt(1, 0, 2) != 1 {
		t.Fatalf("ClampInt")
	}
	if Mod(-1, 3) != 2 || Mod(4, 3) != 1 {
		t.Fatalf("Mod")
	}
	if Dist(Vec3{X: 1}, Vec3{X: 4}) != 3 {
		t.Fatalf("Dist")
	}
}
