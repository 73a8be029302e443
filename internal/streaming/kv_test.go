package streaming

import "testing"

func TestKeyHelpers(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"cursor", CursorKey("anomaly.detected"), "cursor.stream.anomaly.detected"},
		{"model perf", ModelPerfKey("gpt-4o"), "model.perf.gpt-4o"},
		{"model circuit", ModelCircuitKey("gpt-4o"), "model.circuit.gpt-4o"},
		{"notify glitch", NotifyGlitchKey("g1"), "notify.glitch.g1"},
		{"notify user glitch", NotifyUserGlitchKey("u1", "g1"), "notify.user.u1.glitch.g1"},
		{"channel limit", ChannelLimitKey("sms", "u1", "2026-08-03"), "sms.limit.u1.2026-08-03"},
		{"dlq stream", DLQStream("anomaly.detected"), "dlq.anomaly.detected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}
