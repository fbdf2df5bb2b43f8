package scanner

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"spider/internal/domain"
)

// pathPattern matches absolute paths mentioned inside file content
var pathPattern = regexp.MustCompile(`(?:/[A-Za-z0-9._-]+){2,}`)

// importPattern matches script-level inclusion statements: python imports,
// shell source lines, nginx/systemd include directives.
var importPattern = regexp.MustCompile(`(?m)^\s*(?:import|from|source|\.|include|Include)\s+([A-Za-z0-9._/-]+)`)

// maxFileBytes caps how much of a file is read for reference extraction
const maxFileBytes = 256 * 1024

// tailLines is how many trailing lines a log file contributes
const tailLines = 50

// FileScanner watches a configured set of files and extracts the references
// they carry: absolute paths a config mentions, modules a script imports,
// and the tail of log files. These attributes feed relationship derivation.
type FileScanner struct {
	// Paths lists files or glob patterns to observe
	Paths []string
}

// NewFileScanner creates a file scanner for the given paths and globs
func NewFileScanner(paths []string) *FileScanner {
	return &FileScanner{Paths: paths}
}

// Name returns the scanner identifier
func (f *FileScanner) Name() string { return "files" }

// Scan stats and reads each configured file. Missing files are skipped
// silently: a vanished file simply stops appearing in the live set.
func (f *FileScanner) Scan(ctx context.Context, hostID string) ([]domain.RawRecord, error) {
	var records []domain.RawRecord
	for _, path := range f.expand() {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		rec, ok := scanFile(path, hostID)
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// expand resolves glob patterns to a sorted, de-duplicated path list
func (f *FileScanner) expand() []string {
	seen := make(map[string]struct{})
	for _, pattern := range f.Paths {
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			// Not a glob (or nothing matched); treat as a literal path
			seen[pattern] = struct{}{}
			continue
		}
		for _, m := range matches {
			seen[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func scanFile(path, hostID string) (domain.RawRecord, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return domain.RawRecord{}, false
	}

	attrs := map[string]any{
		"path":     path,
		"size":     info.Size(),
		"modified": info.ModTime().UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	content, err := readHead(path)
	if err == nil && len(content) > 0 {
		if refs := extractReferences(content, path); refs != "" {
			attrs["references"] = refs
		}
		if imports := extractImports(content); imports != "" {
			attrs["imports"] = imports
		}
		if strings.HasSuffix(path, ".log") {
			attrs["tail"] = tail(content, tailLines)
		}
	}

	return domain.RawRecord{
		Kind:       domain.KindFile,
		HostID:     hostID,
		Attributes: attrs,
	}, true
}

func readHead(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, maxFileBytes)
	n, _ := f.Read(buf)
	return string(buf[:n]), nil
}

// extractReferences finds absolute paths mentioned in content, excluding
// the file's own path. Returned newline-joined and sorted.
func extractReferences(content, selfPath string) string {
	seen := make(map[string]struct{})
	for _, m := range pathPattern.FindAllString(content, -1) {
		if m == selfPath {
			continue
		}
		seen[m] = struct{}{}
	}
	if len(seen) == 0 {
		return ""
	}
	refs := make([]string, 0, len(seen))
	for r := range seen {
		refs = append(refs, r)
	}
	sort.Strings(refs)
	return strings.Join(refs, "\n")
}

// extractImports finds module inclusion statements, newline-joined
func extractImports(content string) string {
	seen := make(map[string]struct{})
	for _, m := range importPattern.FindAllStringSubmatch(content, -1) {
		seen[m[1]] = struct{}{}
	}
	if len(seen) == 0 {
		return ""
	}
	imports := make([]string, 0, len(seen))
	for i := range seen {
		imports = append(imports, i)
	}
	sort.Strings(imports)
	return strings.Join(imports, "\n")
}

func tail(content string, n int) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
