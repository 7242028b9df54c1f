package assistant

import (
	"errors"
	"testing"
)

func TestValidateCategory(t *testing.T) {
	tests := []struct {
		name       string
		prediction string
		want       string
	}{
		{"single emoji", "🥛", "🥛"},
		{"emoji with variation selector", "🧹", "🧹"},
		{"empty", "", DefaultCategory},
		{"word", "dairy", DefaultCategory},
		{"sentence", "I think 🥛 fits best", DefaultCategory},
		{"two plain letters", "ab", DefaultCategory},
		{"non-bmp emoji plus letter", "🥛!", DefaultCategory},
		{"two non-bmp emoji", "🥛🥛", DefaultCategory},
		{"bmp emoji plus letter", "✂!", "✂!"},
		{"dingbat", "✂", "✂"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateCategory(tt.prediction); got != tt.want {
				t.Errorf("ValidateCategory(%q) = %q, want %q", tt.prediction, got, tt.want)
			}
		})
	}
}

func TestParseExtraction(t *testing.T) {
	texts, err := ParseExtraction(`["milk", "bread", "eggs"]`)
	if err != nil {
		t.Fatalf("ParseExtraction() error = %v", err)
	}
	want := []string{"milk", "bread", "eggs"}
	if len(texts) != len(want) {
		t.Fatalf("got %d texts, want %d", len(texts), len(want))
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("texts[%d] = %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestParseExtractionWhitespace(t *testing.T) {
	texts, err := ParseExtraction("\n  [\"milk\"]  \n")
	if err != nil {
		t.Fatalf("ParseExtraction() error = %v", err)
	}
	if len(texts) != 1 || texts[0] != "milk" {
		t.Errorf("texts = %v, want [milk]", texts)
	}
}

func TestParseExtractionMalformed(t *testing.T) {
	raw := "Sure! Here are your items: milk, bread"
	_, err := ParseExtraction(raw)
	if err == nil {
		t.Fatal("expected an error for a non-JSON response")
	}

	var bad *BadResponseError
	if !errors.As(err, &bad) {
		t.Fatalf("error = %T, want *BadResponseError", err)
	}
	if bad.Raw != raw {
		t.Errorf("Raw = %q, want the original response", bad.Raw)
	}
}

func TestParseExtractionEmptyArray(t *testing.T) {
	texts, err := ParseExtraction("[]")
	if err != nil {
		t.Fatalf("ParseExtraction() error = %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("texts = %v, want empty", texts)
	}
}
