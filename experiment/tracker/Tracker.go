// Package tracker implements the experiment log, which records the
// oracle negative log-likelihood of the generator during training
package tracker

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Tracker records evaluations made during an experiment
type Tracker interface {
	// Section starts a new section of the log, such as a phase of
	// training
	Section(header string) error

	// Track records the negative log-likelihood measured at epoch
	Track(epoch int, nll float64) error

	Close() error
}

// NLLLog is a Tracker which appends to a plain text file. Each
// section header is written on its own line, and each evaluation as
//
//	epoch:\t<epoch>\tnll:\t<nll>
type NLLLog struct {
	file *os.File
}

// Open opens the log at path for appending, creating it if needed
func Open(path string) (*NLLLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open: %v", err)
	}
	return &NLLLog{file: f}, nil
}

// Section implements the Tracker interface
func (n *NLLLog) Section(header string) error {
	if _, err := fmt.Fprintln(n.file, header); err != nil {
		return fmt.Errorf("section: %v", err)
	}
	return nil
}

// Track implements the Tracker interface
func (n *NLLLog) Track(epoch int, nll float64) error {
	if _, err := fmt.Fprintf(n.file, "epoch:\t%d\tnll:\t%v\n", epoch,
		nll); err != nil {
		return fmt.Errorf("track: %v", err)
	}
	return nil
}

// Close closes the log file
func (n *NLLLog) Close() error {
	return n.file.Close()
}

// Entry is a single evaluation read back from a log
type Entry struct {
	Section string
	Epoch   int
	NLL     float64
}

// LoadData loads and returns the evaluations recorded in the log at
// path, each labelled with the section it was recorded in
func LoadData(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadData: %w", err)
	}
	defer f.Close()

	var entries []Entry
	section := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(line, "\t")
		if len(fields) != 4 || fields[0] != "epoch:" || fields[2] != "nll:" {
			section = strings.TrimSpace(line)
			continue
		}

		epoch, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("loadData: %v: %v", path, err)
		}
		nll, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("loadData: %v: %v", path, err)
		}
		entries = append(entries, Entry{Section: section, Epoch: epoch,
			NLL: nll})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loadData: %v", err)
	}
	return entries, nil
}
