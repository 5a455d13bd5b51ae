package carrier

import "testing"

func TestClassify_KnownPrefixesAcrossFormats(t *testing.T) {
	cases := []struct {
		number string
		want   Carrier
	}{
		{"0712345678", Safaricom},
		{"254712345678", Safaricom},
		{"+254712345678", Safaricom},
		{"0733000000", Airtel},
		{"254733000000", Airtel},
		{"0771000000", Telkom},
		{"0763000000", Equitel},
		{"0747000000", Faiba},
	}
	for _, tc := range cases {
		if got := Classify(tc.number); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.number, got, tc.want)
		}
	}
}

func TestClassify_UnknownPrefix(t *testing.T) {
	cases := []string{
		"0600000000",
		"0812345678",
		"not-a-number",
		"12345",
		"254",
	}
	for _, n := range cases {
		if got := Classify(n); got != Unknown {
			t.Errorf("Classify(%q) = %q, want Unknown", n, got)
		}
	}
}

func TestSupported(t *testing.T) {
	if !Supported(Safaricom) {
		t.Error("Safaricom should be supported")
	}
	if Supported(Unknown) {
		t.Error("Unknown should not be supported")
	}
}
