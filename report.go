package mobly

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Report is the summary of non-fatal failures written at the end of a session
type Report struct {
	ErrorCount int           `yaml:"error_count"`
	Errors     []ErrorRecord `yaml:"errors"`
}

// Report returns the current summary
func (r *Recorder) Report() Report {
	records := r.Records()
	return Report{
		ErrorCount: len(records),
		Errors:     records,
	}
}

// WriteReport writes the summary to path as YAML. The file is replaced
// atomically so readers never observe a partial report.
func (r *Recorder) WriteReport(path string) error {
	data, err := yaml.Marshal(r.Report())
	if err != nil {
		return fmt.Errorf("encoding error report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	if err := renameio.WriteFile(path, data, FileMode); err != nil {
		return fmt.Errorf("writing error report: %w", err)
	}
	return nil
}

// ReadReport loads a summary previously written by WriteReport
func ReadReport(path string) (Report, error) {
	var rep Report
	data, err := os.ReadFile(path)
	if err != nil {
		return rep, fmt.Errorf("reading error report: %w", err)
	}
	if err := yaml.Unmarshal(data, &rep); err != nil {
		return rep, fmt.Errorf("decoding error report: %w", err)
	}
	return rep, nil
}
