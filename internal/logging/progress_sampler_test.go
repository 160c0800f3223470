package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "dandelion") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSampler_PercentBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent float64
		want    bool
	}{
		{0, true},
		{5, false},
		{10, true},
		{19.9, false},
		{20, true},
		{150, true},
		{100, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.percent, ""); got != step.want {
			t.Errorf("ShouldLog(%v) = %v, want %v", step.percent, got, step.want)
		}
	}
}

func TestProgressSampler_PhaseChangeResetsBucket(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(50, "dandelion") {
		t.Fatal("first phase should log")
	}
	if s.ShouldLog(55, " dandelion ") {
		t.Fatal("trimmed same phase within bucket should not log")
	}
	if !s.ShouldLog(0, "grass") {
		t.Fatal("phase change should log")
	}
	if s.ShouldLog(-1, "grass") {
		t.Fatal("unknown percent in same phase should not log")
	}
}

func TestProgressSampler_Reset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(90, "grass")
	s.Reset()
	if s.lastPhase != "" || s.lastBucket != -1 {
		t.Fatalf("unexpected state after reset: %+v", s)
	}
	if !s.ShouldLog(0, "") {
		t.Fatal("first event after reset should log")
	}
}
