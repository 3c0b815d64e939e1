package subtitles

import "testing"

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{612.0, "00:10:12,000"},
		{614.5, "00:10:14,500"},
		{3661.0016, "01:01:01,002"},
		{59.9999, "00:01:00,000"},
		{-3, "00:00:00,000"},
		{360000, "100:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.seconds); got != tt.want {
			t.Fatalf("FormatTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		value   string
		want    float64
		wantErr bool
	}{
		{"00:10:12,000", 612, false},
		{"00:10:14.500", 614.5, false},
		{"01:01:01,250", 3661.25, false},
		{"", 0, true},
		{"10:12,000", 0, true},
		{"00:61:00,000", 0, true},
		{"aa:00:00,000", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.value)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseTimestamp(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseTimestamp(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestFormatSRT(t *testing.T) {
	cues := []Cue{
		{Start: 612, End: 614.5, Text: " Hello there. "},
		{Start: 614.5, End: 615, Text: ""},
		{Start: 614.6, End: 616.25, Text: "General Kenobi."},
	}
	want := "1\n00:10:12,000 --> 00:10:14,500\nHello there.\n\n2\n00:10:14,600 --> 00:10:16,250\nGeneral Kenobi.\n"
	if got := FormatSRT(cues); got != want {
		t.Fatalf("FormatSRT mismatch:\n%s\nwant:\n%s", got, want)
	}
	if FormatSRT(nil) != "" {
		t.Fatal("expected empty output for no cues")
	}
}

func TestParseSRTRoundTrip(t *testing.T) {
	input := "\ufeff1\r\n00:00:01,000 --> 00:00:02,500\r\nfirst line\r\nsecond line\r\n\r\n2\r\n00:00:03,000 --> 00:00:04,000 X1:0\r\nnext\r\n"
	cues, err := ParseSRT(input)
	if err != nil {
		t.Fatalf("ParseSRT returned error: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Text != "first line\nsecond line" || cues[0].Start != 1 || cues[0].End != 2.5 {
		t.Fatalf("unexpected first cue: %+v", cues[0])
	}
	if cues[1].End != 4 || cues[1].Text != "next" {
		t.Fatalf("unexpected second cue: %+v", cues[1])
	}

	again, err := ParseSRT(FormatSRT(cues))
	if err != nil {
		t.Fatalf("ParseSRT(FormatSRT) returned error: %v", err)
	}
	if len(again) != len(cues) || again[0] != cues[0] || again[1] != cues[1] {
		t.Fatalf("round trip mismatch: %+v vs %+v", again, cues)
	}
}

func TestParseSRTRejectsGarbage(t *testing.T) {
	if _, err := ParseSRT("hello\n00:00:01,000 --> 00:00:02,000\n"); err == nil {
		t.Fatal("expected error for missing cue number")
	}
	if _, err := ParseSRT("1\n00:00:01 --> 00:00:02,000\ntext\n"); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}

func TestValidate(t *testing.T) {
	good := []Cue{{0, 1, "a"}, {1, 2, "b"}, {2, 2, "c"}}
	if issues := Validate(good, 2); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
	bad := []Cue{{-1, 1, "a"}, {0.5, 0.4, "b"}, {3, 5, "c"}}
	if issues := Validate(bad, 4); len(issues) != 4 {
		t.Fatalf("expected 4 issues, got %v", issues)
	}
}
