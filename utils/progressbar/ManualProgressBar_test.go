package progressbar

import (
	"bytes"
	"strings"
	"testing"
)

func TestManualProgressBar(t *testing.T) {
	var out bytes.Buffer
	bar := NewManualProgressBar(&out, "epochs", 10, 4)

	for i := 0; i < 6; i++ {
		bar.Increment()
	}
	if got := bar.Progress(); got != 1.0 {
		t.Errorf("Progress() = %v, want 1 after exceeding max", got)
	}

	bar.Display()
	bar.Close()
	if !strings.Contains(out.String(), "epochs |") {
		t.Errorf("Display: label missing from %q", out.String())
	}
	if !strings.Contains(out.String(), "100.00%") {
		t.Errorf("Display: percentage missing from %q", out.String())
	}
}

func TestManualProgressBarNilWriter(t *testing.T) {
	bar := NewManualProgressBar(nil, "quiet", 10, 0)
	bar.Increment()
	bar.Display()
	bar.Close()
	if got := bar.Progress(); got != 1.0 {
		t.Errorf("Progress() = %v, want 1", got)
	}
}
