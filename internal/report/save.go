package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RunsDir is the cache subdirectory holding saved reports.
const RunsDir = "runs"

// Save writes r as indented JSON into cacheDir/runs, named after its start
// time. Returns the path to the saved file.
func Save(cacheDir string, r *Run) (string, error) {
	dir := filepath.Join(cacheDir, RunsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	path := filepath.Join(dir, r.StartedAt.Format("2006-01-02T15-04-05")+".json")

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Latest loads the most recently saved report from cacheDir.
func Latest(cacheDir string) (*Run, string, error) {
	dir := filepath.Join(cacheDir, RunsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read report dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, "", fmt.Errorf("no saved reports in %s", dir)
	}
	// Timestamped names sort chronologically.
	sort.Strings(names)
	path := filepath.Join(dir, names[len(names)-1])

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read report: %w", err)
	}
	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, "", fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, path, nil
}
