package statistics

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"avif-converter-go/internal/converter"
)

func scenarioOutcomes() []converter.Outcome {
	return []converter.Outcome{
		converter.Converted("imgs/photo.jpg", "imgs/photo.avif", 500000, 150000),
		converter.Converted("imgs/icon.png", "imgs/icon.avif", 20000, 8000),
	}
}

func TestSummarize_Scenario(t *testing.T) {
	lines, summary := Summarize(scenarioOutcomes())

	if summary.TotalOriginalBytes != 520000 {
		t.Errorf("original = %d, want 520000", summary.TotalOriginalBytes)
	}
	if summary.TotalConvertedBytes != 158000 {
		t.Errorf("converted = %d, want 158000", summary.TotalConvertedBytes)
	}
	if summary.TotalSavedBytes != 362000 {
		t.Errorf("saved = %d, want 362000", summary.TotalSavedBytes)
	}
	if summary.Converted != 2 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Errorf("unexpected counts %+v", summary)
	}
	if !summary.Finalized() {
		t.Error("Summarize must return a finalized summary")
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 report lines, got %d", len(lines))
	}
	want := "Converted imgs/photo.jpg to imgs/photo.avif | Original size: 488.28 KB | Converted size: 146.48 KB | Savings: 341.80 KB"
	if lines[0] != want {
		t.Errorf("line = %q\nwant   %q", lines[0], want)
	}
}

func TestSummarize_OrderIndependent(t *testing.T) {
	outcomes := append(scenarioOutcomes(),
		converter.Converted("a.bmp", "a.avif", 1000, 3000),
		converter.Skipped("b.gif", "b.avif"),
		converter.Failed("c.jpg", converter.ErrorKindDecode, "truncated"),
		converter.Failed("d.png", converter.ErrorKindIO, "permission denied"),
	)

	_, base := Summarize(outcomes)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]converter.Outcome(nil), outcomes...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		_, got := Summarize(shuffled)
		if !got.Equal(base) {
			t.Fatalf("shuffle %d changed summary: %+v vs %+v", i, got, base)
		}
	}

	if base.TotalSavedBytes != 360000 {
		t.Errorf("negative savings must reduce the total, got %d", base.TotalSavedBytes)
	}
	if base.Skipped != 1 || base.Failed != 2 || base.Converted != 3 {
		t.Errorf("unexpected counts %+v", base)
	}
}

func TestSummarize_Empty(t *testing.T) {
	lines, summary := Summarize(nil)
	if len(lines) != 0 {
		t.Errorf("expected no lines, got %v", lines)
	}
	if !summary.Equal(BatchSummary{}) {
		t.Errorf("expected zeroed summary, got %+v", summary)
	}
}

func TestBatchSummary_AddAfterFinalize(t *testing.T) {
	s := NewBatchSummary()
	if err := s.Add(converter.Converted("a", "b", 10, 5)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	s.Finalize()

	err := s.Add(converter.Converted("c", "d", 10, 5))
	if !errors.Is(err, ErrSummaryFinalized) {
		t.Errorf("expected ErrSummaryFinalized, got %v", err)
	}
	if s.Converted != 1 || s.TotalOriginalBytes != 10 {
		t.Errorf("finalized summary was mutated: %+v", s)
	}
}

func TestNoticesAndBreakdown(t *testing.T) {
	outcomes := []converter.Outcome{
		converter.Converted("a.jpg", "a.avif", 10, 5),
		converter.Skipped("b.jpg", "b.avif"),
		converter.Failed("c.jpg", converter.ErrorKindDecode, "bad header"),
	}

	notices := Notices(outcomes)
	if len(notices) != 2 {
		t.Fatalf("expected 2 notices, got %v", notices)
	}
	if !strings.Contains(notices[0], "b.avif already exists") {
		t.Errorf("unexpected skip notice %q", notices[0])
	}
	if !strings.Contains(notices[1], "c.jpg [decode_error]: bad header") {
		t.Errorf("unexpected failure notice %q", notices[1])
	}

	if got := Breakdown(outcomes); got != "converted: 1, failed/decode_error: 1, skipped: 1" {
		t.Errorf("unexpected breakdown %q", got)
	}
}

func TestString(t *testing.T) {
	_, s := Summarize(scenarioOutcomes())
	out := s.String()
	for _, want := range []string{"Total Original Size: 507.81 KB", "Total Savings: 353.52 KB", "Converted: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		1536:    "1.5 KB",
		-2048:   "-2.0 KB",
		5 << 20: "5.0 MB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
