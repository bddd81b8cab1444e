package usecase

import "testing"

func TestFormatConfidence(t *testing.T) {
	cases := map[float32]string{
		1:      "100.0",
		0:      "0.0",
		0.5:    "50.0",
		0.9731: "97.3",
		0.0004: "0.0",
	}
	for in, want := range cases {
		if got := FormatConfidence(in); got != want {
			t.Fatalf("FormatConfidence(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDiagnosisReplacesUnderscores(t *testing.T) {
	got := FormatDiagnosis("Background_without_leaves", 0.25, "No plant detected.")
	want := "### 🌿 Diagnosis: Background without leaves\n**Confidence:** 25.0%\n\n### 🛠 Recommended Treatment:\nNo plant detected."
	if got != want {
		t.Fatalf("unexpected display %q", got)
	}
}
