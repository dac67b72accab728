package masking

import "testing"

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"1234":          "****",
		"12345678901":   "****8901",
		"sk_abcdefghij": "sk_****ghij",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskSensitiveKeepsOrdinaryFields(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"nin":          "12345678901",
		"service_code": "NIN_MOD_DOB",
		"form": map[string]any{
			"bvn_number": "22233344455",
			"first_name": "Ada",
		},
	})

	if out["nin"] != "****8901" {
		t.Fatalf("expected nin masked, got %v", out["nin"])
	}
	if out["service_code"] != "NIN_MOD_DOB" {
		t.Fatalf("expected service_code untouched, got %v", out["service_code"])
	}
	form := out["form"].(map[string]any)
	if form["bvn_number"] != "****4455" {
		t.Fatalf("expected nested bvn masked, got %v", form["bvn_number"])
	}
	if form["first_name"] != "Ada" {
		t.Fatalf("expected first_name untouched, got %v", form["first_name"])
	}
}
