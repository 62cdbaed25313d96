package floe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileExecutionJournal is an implementation of ExecutionJournal that writes
// to a file per workflow instance, formatted as newline-delimited JSON.
type FileExecutionJournal struct {
	directory string
}

func NewFileExecutionJournal(directory string) *FileExecutionJournal {
	return &FileExecutionJournal{directory: directory}
}

func (j *FileExecutionJournal) journalPath(instanceID string) string {
	return filepath.Join(j.directory, fmt.Sprintf("%s.jsonl", instanceID))
}

func (j *FileExecutionJournal) WriteEntries(ctx context.Context, instanceID string, entries []LogEntry) error {
	filePath := j.journalPath(instanceID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return f.Sync()
}

func (j *FileExecutionJournal) ReadEntries(ctx context.Context, instanceID string) ([]LogEntry, error) {
	data, err := os.ReadFile(j.journalPath(instanceID))
	if err != nil {
		return nil, err
	}
	var entries []LogEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
