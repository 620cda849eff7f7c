package tracker

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestNLLLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment-log.txt")

	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Section("pre-training..."); err != nil {
		t.Fatal(err)
	}
	if err := log.Track(0, 10.5); err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening appends
	log, err = Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Section("adversarial training..."); err != nil {
		t.Fatal(err)
	}
	if err := log.Track(5, 9.25); err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "pre-training...\nepoch:\t0\tnll:\t10.5\n" +
		"adversarial training...\nepoch:\t5\tnll:\t9.25\n"
	if string(data) != want {
		t.Errorf("log = %q, want %q", data, want)
	}

	entries, err := LoadData(path)
	if err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	wantEntries := []Entry{
		{Section: "pre-training...", Epoch: 0, NLL: 10.5},
		{Section: "adversarial training...", Epoch: 5, NLL: 9.25},
	}
	if !slices.Equal(entries, wantEntries) {
		t.Errorf("entries = %v, want %v", entries, wantEntries)
	}
}

func TestLoadDataMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment-log.txt")
	if err := os.WriteFile(path, []byte("epoch:\tx\tnll:\t1\n"),
		0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadData(path); err == nil {
		t.Error("LoadData accepted a malformed epoch")
	}
}
