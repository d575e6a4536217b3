package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/axiomtrader/assistant/internal/apperr"
)

// ReportStore persists report artifacts (backtest results, portfolio
// snapshots) to a configured directory, named by RFC3339 timestamp per
// spec.md §8's report-naming convention. Satisfies httpapi.ReportStore.
type ReportStore struct {
	dir string
}

// NewReportStore ensures dir exists and returns a store rooted there.
func NewReportStore(dir string) (*ReportStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ConfigurationError, "create reports dir %s: %v", dir, err)
	}
	return &ReportStore{dir: dir}, nil
}

func (s *ReportStore) path(name string) (string, error) {
	clean := filepath.Clean(name)
	if clean == "." || clean == ".." || strings.Contains(clean, string(filepath.Separator)) {
		return "", apperr.Wrap(apperr.ValidationError, "invalid report name %q", name)
	}
	return filepath.Join(s.dir, clean), nil
}

// Save writes payload under name, overwriting any prior artifact with the
// same name, and returns the name saved (mirroring the teacher's
// Create-returns-ID convention).
func (s *ReportStore) Save(ctx context.Context, name string, payload []byte) (string, error) {
	full, err := s.path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(full, payload, 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", name, err)
	}
	return name, nil
}

// Load reads a previously saved artifact by name.
func (s *ReportStore) Load(ctx context.Context, name string) ([]byte, error) {
	full, err := s.path(name)
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(full)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "report %s not found: %v", name, err)
	}
	return payload, nil
}

// List returns every artifact name currently on disk, newest first.
func (s *ReportStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list reports dir %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names))) // RFC3339 names sort chronologically as strings
	return names, nil
}
