package scheduling

import (
	"math"
	"testing"
)

func TestDeriveCronExpression(t *testing.T) {
	testCases := []struct {
		name       string
		intervalMs float64
		want       string
	}{
		{"five seconds", 5000, "*/5 * * * * *"},
		{"one second", 1000, "*/1 * * * * *"},
		{"sub-second rounds up to one", 400, "*/1 * * * * *"},
		{"thirty seconds", 30000, "*/30 * * * * *"},
		{"one minute", 60000, "0 */1 * * * *"},
		{"five minutes", 300000, "0 */5 * * * *"},
		{"one hour", 3600000, "0 0 */1 * * *"},
		{"six hours", 21600000, "0 0 */6 * * *"},
		{"one day", 86400000, "0 0 0 */1 * *"},
		{"two days", 172800000, "0 0 0 */2 * *"},
		{"zero falls back", 0, DefaultCronExpression},
		{"negative falls back", -5, DefaultCronExpression},
		{"90s not divisible falls back", 90000, DefaultCronExpression},
		{"90m not divisible falls back", 5400000, DefaultCronExpression},
		{"36h not divisible falls back", 129600000, DefaultCronExpression},
		{"NaN falls back", math.NaN(), DefaultCronExpression},
		{"Inf falls back", math.Inf(1), DefaultCronExpression},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveCronExpression(tc.intervalMs); got != tc.want {
				t.Errorf("DeriveCronExpression(%v) = %q, want %q", tc.intervalMs, got, tc.want)
			}
		})
	}
}
