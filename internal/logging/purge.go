package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Daily log names outside this range are not ours and are never removed.
const (
	firstLogDate = "19901219"
	lastLogDate  = "20991231"
)

// ClearOld removes daily log files in dir that are keepDays or more days
// older than now. Only files named YYYYMMDD.log are considered, and the
// paths in active are never removed. It returns the names of the removed
// files.
func ClearOld(dir string, keepDays int, now time.Time, active ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	skip := make(map[string]bool, len(active))
	for _, p := range active {
		skip[filepath.Clean(p)] = true
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) != 12 || !strings.HasSuffix(name, ".log") {
			continue
		}
		date := strings.TrimSuffix(name, ".log")
		if date < firstLogDate || date > lastLogDate {
			continue
		}
		logDay, err := time.ParseInLocation(FileLayout, date, now.Location())
		if err != nil {
			continue
		}
		if int(today.Sub(logDay).Hours()/24) < keepDays {
			continue
		}
		path := filepath.Join(dir, name)
		if skip[path] {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
