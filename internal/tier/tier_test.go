package tier

import "testing"

func TestTier_String(t *testing.T) {
	cases := []struct {
		tier Tier
		want string
	}{
		{LowEnd, "low_end"},
		{MidRange, "mid_range"},
		{Flagship, "flagship"},
		{Tier(99), "low_end"},
	}
	for _, tc := range cases {
		if got := tc.tier.String(); got != tc.want {
			t.Errorf("Tier(%d).String() = %q, want %q", tc.tier, got, tc.want)
		}
	}
}

func TestFromEnv(t *testing.T) {
	cases := []struct {
		in      string
		want    Tier
		wantOK bool
	}{
		{"flagship", Flagship, true},
		{"Flagship", Flagship, true},
		{"  flagship  ", Flagship, true},
		{"mid_range", MidRange, true},
		{"midrange", MidRange, true},
		{"mid", MidRange, true},
		{"low_end", LowEnd, true},
		{"lowend", LowEnd, true},
		{"low", LowEnd, true},
		{"", LowEnd, false},
		{"potato", LowEnd, false},
	}
	for _, tc := range cases {
		got, ok := FromEnv(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("FromEnv(%q) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestDetect_MissingSysfsFallsBackToLowEnd(t *testing.T) {
	// In a test sandbox /sys/devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq
	// may or may not exist, but Detect must never panic and must always
	// return one of the three known tiers.
	got := Detect()
	if got != LowEnd && got != MidRange && got != Flagship {
		t.Fatalf("Detect() returned unknown tier %v", got)
	}
}
