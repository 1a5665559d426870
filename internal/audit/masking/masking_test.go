package masking

import "testing"

func TestMask(t *testing.T) {
	cases := []struct {
		key   string
		value string
		want  string
	}{
		{"payment_intent_id", "pi_3Nabcd9876", "pi_****9876"},
		{"payment_intent_id", "pi_12", "pi_****"},
		{"payment_intent_id", "  ", ""},
		{"payment_intent_id", "nounderscore12345", "****2345"},
		{"hiker_email", "anna@example.com", "a****@example.com"},
		{"guide_email", "not-an-email", "****mail"},
	}
	for _, tc := range cases {
		if got := Mask(tc.key, tc.value); got != tc.want {
			t.Errorf("Mask(%q, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
		}
	}
}
