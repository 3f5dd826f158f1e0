package logging

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
)

// DefaultCapacity is the number of lines a Ring keeps.
const DefaultCapacity = 1000

// levelTokens maps user-facing level names to the tokens the text
// formatter writes.
var levelTokens = map[string]string{
	"DEBUG":   "DEBU",
	"INFO":    "INFO",
	"WARN":    "WARN",
	"WARNING": "WARN",
	"ERROR":   "ERRO",
	"FATAL":   "FATA",
}

// Ring is a bounded, concurrency-safe log sink. Once full, the oldest line
// is dropped for every new one. Ring implements io.Writer so it can sit
// behind a logger.
type Ring struct {
	mu       sync.Mutex
	lines    []string
	capacity int
	partial  []byte
}

// NewRing creates a ring holding at most capacity lines.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity}
}

// Add appends one line.
func (r *Ring) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(line)
}

func (r *Ring) add(line string) {
	r.lines = append(r.lines, line)
	if over := len(r.lines) - r.capacity; over > 0 {
		r.lines = append(r.lines[:0:0], r.lines[over:]...)
	}
}

// Write splits p into lines. A trailing fragment is held until its newline
// arrives.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := append(r.partial, p...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		r.add(string(data[:idx]))
		data = data[idx+1:]
	}
	r.partial = append([]byte(nil), data...)
	return len(p), nil
}

// Lines returns a copy of the stored lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Len returns the number of stored lines.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Clear drops every stored line.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
	r.partial = nil
}

// Filter returns the lines matching level (empty or "ALL" for any) and
// containing search, case-insensitively.
func (r *Ring) Filter(level, search string) []string {
	token := ""
	if lvl := strings.ToUpper(level); lvl != "" && lvl != "ALL" {
		token = levelTokens[lvl]
		if token == "" {
			token = lvl
		}
	}
	search = strings.ToLower(search)

	var out []string
	for _, line := range r.Lines() {
		if token != "" && !hasLevel(line, token) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(line), search) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func hasLevel(line, token string) bool {
	for _, field := range strings.Fields(line) {
		if field == token {
			return true
		}
	}
	return false
}

// LoadFile fills r with the last lines of the file at path. A missing file
// leaves r empty.
func (r *Ring) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		r.Add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	return nil
}
