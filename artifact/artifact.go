// Package artifact assembles recordings into appmap documents and writes
// them as JSON.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/ikuo/appmap/classmap"
	"github.com/ikuo/appmap/event"
)

// Version is the appmap format version of the documents.
const Version = "1.5.0"

// FileSuffix ends the name of every appmap file.
const FileSuffix = ".appmap.json"

// Test statuses.
const (
	TestSucceeded = "succeeded"
	TestFailed    = "failed"
)

// Recorder names what produced a recording, e.g. {"ginkgo", "tests"}.
type Recorder struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Language describes the runtime of the recorded program.
type Language struct {
	Name    string `json:"name"`
	Engine  string `json:"engine,omitempty"`
	Version string `json:"version,omitempty"`
}

// Framework is a library the recorded program is built on.
type Framework struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// TestFailure describes why a recorded test failed.
type TestFailure struct {
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// Metadata describes a recording.
type Metadata struct {
	App            string       `json:"app,omitempty"`
	Name           string       `json:"name,omitempty"`
	Recorder       Recorder     `json:"recorder"`
	Language       *Language    `json:"language,omitempty"`
	Frameworks     []Framework  `json:"frameworks,omitempty"`
	TestStatus     string       `json:"test_status,omitempty"`
	TestFailure    *TestFailure `json:"test_failure,omitempty"`
	SourceLocation string       `json:"source_location,omitempty"`
}

// GoLanguage describes the running Go toolchain.
func GoLanguage() *Language {
	return &Language{
		Name:    "go",
		Engine:  runtime.Compiler,
		Version: runtime.Version(),
	}
}

// Document is an appmap.
type Document struct {
	Version  string           `json:"version"`
	Metadata Metadata         `json:"metadata"`
	ClassMap []*classmap.Node `json:"classMap"`
	Events   []event.Event    `json:"events"`
}

// Build assembles a document. The language defaults to the running Go
// toolchain.
func Build(
	meta Metadata,
	classMap []*classmap.Node,
	events []event.Event,
) Document {
	if meta.Language == nil {
		meta.Language = GoLanguage()
	}

	if classMap == nil {
		classMap = []*classmap.Node{}
	}

	if events == nil {
		events = []event.Event{}
	}

	return Document{
		Version:  Version,
		Metadata: meta,
		ClassMap: classMap,
		Events:   events,
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9\-]+`)

// FileName turns a recording name into an appmap file name, e.g.
// "Hello hello" into "Hello_hello.appmap.json".
func FileName(name string) string {
	base := strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), "_")
	if base == "" {
		base = "appmap"
	}

	return base + FileSuffix
}

// WriteFile writes the document into dir, creating dir if needed, and returns
// the path of the file.
func (d Document) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode appmap: %w", err)
	}

	path := filepath.Join(dir, FileName(d.Metadata.Name))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename %s: %w", tmp, err)
	}

	return path, nil
}

// ReadFile reads a document written by WriteFile.
func ReadFile(path string) (Document, error) {
	var d Document

	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("read appmap: %w", err)
	}

	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("decode %s: %w", path, err)
	}

	return d, nil
}
