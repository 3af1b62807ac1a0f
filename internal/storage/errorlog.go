package storage

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// FileErrorLog appends one line per failure to a text file. The file is only
// created when the first failure is recorded.
type FileErrorLog struct {
	mu   sync.Mutex
	path string
}

func NewFileErrorLog(path string) *FileErrorLog {
	return &FileErrorLog{path: path}
}

// Path is the log file location
func (l *FileErrorLog) Path() string {
	return l.path
}

// Record logs an analyzer failure. A channel below 0 marks a file-level
// failure and module "" omits the module field.
func (l *FileErrorLog) Record(path string, channel int, module string, err error) error {
	line := fmt.Sprintf("File: %s", path)
	if channel >= 0 {
		line += fmt.Sprintf(", Channel %d", channel)
	}
	if module != "" {
		line += fmt.Sprintf(", Module: %s", module)
	}
	line += fmt.Sprintf(", Exception: %v\n", err)

	l.mu.Lock()
	defer l.mu.Unlock()
	f, ferr := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if ferr != nil {
		return ferr
	}
	_, werr := f.WriteString(line)
	return errors.Join(werr, f.Close())
}
