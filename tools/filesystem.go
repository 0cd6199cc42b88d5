package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hapershtein/llamagent/config"
	"github.com/hapershtein/llamagent/errors"
)

const maxReadFileSize = 2_000_000

// ReadFileTool reads a file, optionally restricted to a line range.
type ReadFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Read the contents of a file. Returns the text content with line numbers."
}
func (t *ReadFileTool) Risk() Risk { return RiskSafe }
func (t *ReadFileTool) Schema() Parameters {
	return Parameters{
		Type: "object",
		Properties: map[string]Property{
			"path":       {Type: "string", Description: "Absolute or relative path to the file."},
			"start_line": {Type: "integer", Description: "First line to read (1-indexed, optional)."},
			"end_line":   {Type: "integer", Description: "Last line to read (1-indexed, optional)."},
		},
		Required: []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, ok := strArg(args, "path")
	if !ok {
		return "", errors.New("missing or invalid 'path' argument")
	}
	path = expandHome(path)

	if err := checkHidden(path, t.fsAccess); err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", errors.New("file not found: %s", path)
	}
	if info.Size() > maxReadFileSize {
		return "", errors.New("file too large (>2MB): use start_line/end_line or grep")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", path)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")

	first := 1
	last := len(lines)
	if s := intArg(args, "start_line", 0); s > 0 {
		first = s
	}
	if e := intArg(args, "end_line", 0); e > 0 && e < last {
		last = e
	}
	if first > last || first > len(lines) {
		return "(empty range)", nil
	}

	var b strings.Builder
	for i := first; i <= last; i++ {
		fmt.Fprintf(&b, "%4d: %s\n", i, lines[i-1])
	}
	out := strings.TrimSuffix(b.String(), "\n")
	if out == "" {
		return "(empty file)", nil
	}
	return out, nil
}

// WriteFileTool writes or appends to a file, creating parent directories.
type WriteFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write or overwrite a file with given content. Set append to add to the end instead."
}
func (t *WriteFileTool) Risk() Risk { return RiskConfirm }
func (t *WriteFileTool) Schema() Parameters {
	return Parameters{
		Type: "object",
		Properties: map[string]Property{
			"path":    {Type: "string", Description: "Path to the file to write."},
			"content": {Type: "string", Description: "Content to write into the file."},
			"append":  {Type: "boolean", Description: "If true, append instead of overwrite (default false)."},
		},
		Required: []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, pathOk := strArg(args, "path")
	content, contentOk := strArg(args, "content")
	if !pathOk || !contentOk {
		return "", errors.New("missing or invalid 'path' or 'content' arguments")
	}
	path = expandHome(path)

	if err := checkWritable(path, t.fsAccess); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create parent directory for '%s'", path)
	}

	if boolArg(args, "append") {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return "", errors.Wrapf(err, "failed to open '%s' for append", path)
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return "", errors.Wrapf(err, "failed to append to '%s'", path)
		}
		return fmt.Sprintf("Appended %d chars to %s", len(content), path), nil
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return fmt.Sprintf("Written %d chars to %s", len(content), path), nil
}

// EditFileTool replaces an exact block of text inside an existing file.
type EditFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *EditFileTool) Name() string { return "edit_file" }
func (t *EditFileTool) Description() string {
	return "Edit an existing file by replacing a specific block of text. Provide old_text " +
		"(exact match, including whitespace) and new_text to substitute. Fails if old_text is not found."
}
func (t *EditFileTool) Risk() Risk { return RiskConfirm }
func (t *EditFileTool) Schema() Parameters {
	return Parameters{
		Type: "object",
		Properties: map[string]Property{
			"path":        {Type: "string", Description: "Path to the file to edit."},
			"old_text":    {Type: "string", Description: "Exact text to find (must exist in the file)."},
			"new_text":    {Type: "string", Description: "Replacement text."},
			"replace_all": {Type: "boolean", Description: "Replace every occurrence instead of only the first (default false)."},
		},
		Required: []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, pathOk := strArg(args, "path")
	oldText, oldOk := strArg(args, "old_text")
	newText, newOk := strArg(args, "new_text")
	if !pathOk || !oldOk || !newOk {
		return "", errors.New("missing or invalid 'path', 'old_text' or 'new_text' arguments")
	}
	path = expandHome(path)

	if err := checkWritable(path, t.fsAccess); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.New("file not found: %s", path)
	}
	content := string(data)
	if !strings.Contains(content, oldText) {
		return "", errors.New("old_text not found in %s", path)
	}

	count := 1
	if boolArg(args, "replace_all") {
		count = strings.Count(content, oldText)
		content = strings.ReplaceAll(content, oldText, newText)
	} else {
		content = strings.Replace(content, oldText, newText, 1)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write '%s'", path)
	}
	return fmt.Sprintf("Replaced %d occurrence(s) in %s", count, path), nil
}

// ListDirTool lists the entries of a directory.
type ListDirTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *ListDirTool) Name() string { return "list_dir" }
func (t *ListDirTool) Description() string {
	return "List files and directories at a given path."
}
func (t *ListDirTool) Risk() Risk { return RiskSafe }
func (t *ListDirTool) Schema() Parameters {
	return Parameters{
		Type: "object",
		Properties: map[string]Property{
			"path":        {Type: "string", Description: "Directory path to list (default '.')."},
			"show_hidden": {Type: "boolean", Description: "Include hidden files (default false)."},
		},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path := expandHome(strArgDefault(args, "path", "."))
	showHidden := boolArg(args, "show_hidden")

	if err := checkHidden(path, t.fsAccess); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", errors.New("path not found: %s", path)
	}

	// Directories first, then case-insensitive by name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	var lines []string
	for _, e := range entries {
		if !showHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch {
		case e.IsDir():
			lines = append(lines, fmt.Sprintf("[DIR]  %s/", e.Name()))
		case e.Type()&os.ModeSymlink != 0:
			target, _ := filepath.EvalSymlinks(filepath.Join(path, e.Name()))
			lines = append(lines, fmt.Sprintf("[LNK]  %s -> %s", e.Name(), target))
		default:
			var size int64
			if info, err := e.Info(); err == nil {
				size = info.Size()
			}
			lines = append(lines, fmt.Sprintf("[FILE] %s  (%s)", e.Name(), humanSize(size)))
		}
	}
	if len(lines) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(lines, "\n"), nil
}

// FindFilesTool matches files against a glob pattern.
type FindFilesTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *FindFilesTool) Name() string { return "find_files" }
func (t *FindFilesTool) Description() string {
	return "Find files matching a glob pattern, e.g. '**/*.go' or 'src/*.ts'."
}
func (t *FindFilesTool) Risk() Risk { return RiskSafe }
func (t *FindFilesTool) Schema() Parameters {
	return Parameters{
		Type: "object",
		Properties: map[string]Property{
			"pattern": {Type: "string", Description: "Glob pattern, e.g. '**/*.py' or 'src/*.ts'."},
			"root":    {Type: "string", Description: "Root directory to search from (default '.')."},
		},
		Required: []string{"pattern"},
	}
}

func (t *FindFilesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	pattern, ok := strArg(args, "pattern")
	if !ok {
		return "", errors.New("missing or invalid 'pattern' argument")
	}
	root := expandHome(strArgDefault(args, "root", "."))

	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return "", errors.New("invalid glob pattern '%s': %v", pattern, err)
	}
	sort.Strings(matches)

	var visible []string
	for _, m := range matches {
		full := filepath.Join(root, m)
		if hidden, _ := isPathRestricted(full, t.fsAccess.Hidden); hidden {
			continue
		}
		visible = append(visible, full)
		if len(visible) == 200 {
			break
		}
	}
	if len(visible) == 0 {
		return fmt.Sprintf("No files matched '%s' under %s", pattern, root), nil
	}
	return strings.Join(visible, "\n"), nil
}

// GrepTool searches for a regex pattern inside files.
type GrepTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *GrepTool) Name() string { return "grep" }
func (t *GrepTool) Description() string {
	return "Search for a regex pattern inside files."
}
func (t *GrepTool) Risk() Risk { return RiskSafe }
func (t *GrepTool) Schema() Parameters {
	return Parameters{
		Type: "object",
		Properties: map[string]Property{
			"pattern":          {Type: "string", Description: "Regex pattern to search for."},
			"path":             {Type: "string", Description: "File or directory to search in (default '.')."},
			"glob":             {Type: "string", Description: "File glob filter, e.g. '*.go' (optional)."},
			"case_insensitive": {Type: "boolean", Description: "Case-insensitive matching (default false)."},
			"context_lines":    {Type: "integer", Description: "Lines of context around each match (default 0)."},
		},
		Required: []string{"pattern"},
	}
}

const maxGrepMatches = 300

func (t *GrepTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	pattern, ok := strArg(args, "pattern")
	if !ok {
		return "", errors.New("missing or invalid 'pattern' argument")
	}
	if boolArg(args, "case_insensitive") {
		pattern = "(?i)" + pattern
	}
	rx, err := regexp.Compile(pattern)
	if err != nil {
		return "", errors.New("invalid regex: %v", err)
	}

	target := expandHome(strArgDefault(args, "path", "."))
	fileGlob := strArgDefault(args, "glob", "")
	contextLines := intArg(args, "context_lines", 0)

	var files []string
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		files = []string{target}
	} else {
		err := filepath.WalkDir(target, func(p string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if fileGlob != "" {
				if match, _ := doublestar.Match(fileGlob, d.Name()); !match {
					return nil
				}
			}
			if hidden, _ := isPathRestricted(p, t.fsAccess.Hidden); hidden {
				return nil
			}
			files = append(files, p)
			return nil
		})
		if err != nil {
			return "", errors.Wrapf(err, "failed to walk '%s'", target)
		}
		sort.Strings(files)
	}

	var results []string
	matchCount := 0
	for _, fp := range files {
		data, err := os.ReadFile(fp)
		if err != nil {
			continue
		}
		lines := strings.Split(string(data), "\n")
		for i, line := range lines {
			if !rx.MatchString(line) {
				continue
			}
			matchCount++
			if matchCount > maxGrepMatches {
				results = append(results, "... (truncated, >300 matches)")
				return strings.Join(results, "\n"), nil
			}
			start := max(0, i-contextLines)
			end := min(len(lines), i+contextLines+1)
			var block []string
			for j := start; j < end; j++ {
				marker := " "
				if j == i {
					marker = ">"
				}
				block = append(block, fmt.Sprintf("%s:%d%s %s", fp, j+1, marker, lines[j]))
			}
			results = append(results, strings.Join(block, "\n"))
		}
	}
	if len(results) == 0 {
		return fmt.Sprintf("No matches for '%s'", strArgDefault(args, "pattern", "")), nil
	}
	return strings.Join(results, "\n"), nil
}

func checkHidden(path string, fs *config.FilesystemAccess) error {
	hidden, err := isPathRestricted(path, fs.Hidden)
	if err != nil {
		return err
	}
	if hidden {
		return errors.New("access denied: path '%s' is hidden", path)
	}
	return nil
}

func checkWritable(path string, fs *config.FilesystemAccess) error {
	if err := checkHidden(path, fs); err != nil {
		return err
	}
	readOnly, err := isPathRestricted(path, fs.ReadOnly)
	if err != nil {
		return err
	}
	if readOnly {
		return errors.New("access denied: path '%s' is read-only", path)
	}
	return nil
}

func humanSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1_048_576:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/1_048_576)
	}
}
