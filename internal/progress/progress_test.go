package progress

import (
	"bytes"
	"strings"
	"testing"

	"avif-converter-go/internal/converter"
	"avif-converter-go/internal/pool"
)

func events() []pool.Event {
	return []pool.Event{
		{Done: 1, Total: 3, Outcome: converter.Converted("/p/a.jpg", "/p/a.avif", 10, 5)},
		{Done: 2, Total: 3, Outcome: converter.Skipped("/p/b.png", "/p/b.avif")},
		{Done: 3, Total: 3, Outcome: converter.Failed("/p/c.gif", converter.ErrorKindDecode, "bad")},
	}
}

func TestPrinter_Enabled(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, true)
	for _, e := range events() {
		p.Observe(e)
	}
	p.Finish()

	out := buf.String()
	for _, want := range []string{"[1/3  33%] converted a.jpg", "[2/3  66%] skipped b.png", "[3/3 100%] failed c.gif"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%q", want, out)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish should end the status line")
	}
	if p.Count(converter.StatusConverted) != 1 || p.Count(converter.StatusFailed) != 1 {
		t.Error("unexpected counts")
	}
}

func TestPrinter_Disabled(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)
	for _, e := range events() {
		p.Observe(e)
	}
	p.Finish()

	if buf.Len() != 0 {
		t.Errorf("disabled printer wrote %q", buf.String())
	}
	if p.Count(converter.StatusSkipped) != 1 {
		t.Error("disabled printer should still count")
	}
}

func TestForStderr_HiddenWhenNotRequested(t *testing.T) {
	if ForStderr(false).Enabled() {
		t.Error("printer must stay disabled when progress is turned off")
	}
}
