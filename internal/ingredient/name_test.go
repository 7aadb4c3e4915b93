package ingredient

import "testing"

func TestDecodeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"brown%20sugar", "brown sugar"},
		{"jalape%C3%B1o", "jalapeño"},
		{"plain flour", "plain flour"},
		{"100% juice", "100% juice"},
		{"50%off", "50%off"},
		{"salt+pepper", "salt+pepper"},
		{"%2520", "%20"},
		{"trailing%2", "trailing%2"},
	}
	for _, tt := range tests {
		if got := DecodeName(tt.input); got != tt.want {
			t.Errorf("DecodeName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDecodeNameConverges(t *testing.T) {
	inputs := []string{"a%252520b", "brown%20sugar", "100% juice", "x%2Fy"}
	for _, input := range inputs {
		cur := input
		for i := 0; i < 10 && HasEncoding(cur); i++ {
			cur = DecodeName(cur)
		}
		if HasEncoding(cur) {
			t.Fatalf("DecodeName(%q) did not converge: %q", input, cur)
		}
		if again := DecodeName(DecodeName(cur)); again != cur {
			t.Errorf("DecodeName not idempotent at fixed point: %q -> %q", cur, again)
		}
	}
}

func TestDecodeNameInvalidUTF8(t *testing.T) {
	got := DecodeName("bad%FFbyte")
	if got != "bad�byte" {
		t.Errorf("DecodeName = %q, want replacement character", got)
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"brown sugar", "Brown Sugar"},
		{"OLIVE OIL", "Olive Oil"},
		{"  extra   virgin olive oil ", "Extra Virgin Olive Oil"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := TitleCase(tt.input); got != tt.want {
			t.Errorf("TitleCase(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Brown   Sugar ", "brown sugar"},
		{"JALAPEÑO", "jalapeño"},
		{"jalapeño", "jalapeño"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.input); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
