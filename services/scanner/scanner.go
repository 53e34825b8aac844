// Package scanner locates usages of Python packages inside a source tree.
//
// The scanner answers one question: where does this codebase actually touch
// the dependency that just changed? It parses each file with tree-sitter,
// builds a symbol table from the import statements (including aliases), and
// then walks the tree recording every import, call, and attribute access
// that resolves back to a target package.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/DepScope/services/deps"
)

// DefaultMaxFileSize is the largest file the scanner will parse (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// Sentinel errors returned by ScanFile.
var (
	// ErrFileTooLarge indicates the file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent indicates the file is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid file content")
)

// defaultExcludedDirs are the directory names ScanTree skips unless the set
// is replaced with WithExcludedDirs. Hidden directories (leading dot) are
// excluded regardless.
var defaultExcludedDirs = map[string]struct{}{
	"__pycache__":  {},
	"node_modules": {},
	"venv":         {},
	"env":          {},
	"build":        {},
	"dist":         {},
}

// ScannerOption configures a Scanner instance.
type ScannerOption func(*Scanner)

// WithMaxFileSize sets the maximum file size the scanner will accept.
func WithMaxFileSize(bytes int64) ScannerOption {
	return func(s *Scanner) {
		if bytes > 0 {
			s.maxFileSize = bytes
		}
	}
}

// WithConcurrency bounds the number of files parsed in parallel by ScanTree.
func WithConcurrency(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithExcludedDirs replaces the set of directory names ScanTree never
// descends into. Hidden directories stay excluded either way.
func WithExcludedDirs(names ...string) ScannerOption {
	return func(s *Scanner) {
		excluded := make(map[string]struct{}, len(names))
		for _, name := range names {
			excluded[name] = struct{}{}
		}
		s.excluded = excluded
	}
}

// Scanner finds usages of Python packages in source trees.
//
// Description:
//
//	Scanner uses tree-sitter to parse Python source files. Each scan
//	creates its own tree-sitter parser instance internally, so a single
//	Scanner may be shared freely across goroutines.
//
// Thread Safety:
//
//	Scanner instances are safe for concurrent use.
type Scanner struct {
	maxFileSize int64
	concurrency int
	excluded    map[string]struct{}
}

// New creates a Scanner with the given options.
func New(opts ...ScannerOption) *Scanner {
	s := &Scanner{
		maxFileSize: DefaultMaxFileSize,
		concurrency: runtime.NumCPU(),
		excluded:    defaultExcludedDirs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanFile extracts usages of one target package from one Python source.
// See scanFile for the semantics; this is the single-target convenience
// over the same walk.
//
// Outputs:
//   - []Usage: Usage sites in document order. Empty, never nil, when the
//     file does not use the target.
//   - error: ErrFileTooLarge, ErrInvalidContent, a tree-sitter failure,
//     or a context error.
func (s *Scanner) ScanFile(ctx context.Context, content []byte, filePath, target string) ([]Usage, error) {
	normalized := deps.Normalize(target)
	byPkg, err := s.scanFile(ctx, content, filePath, []string{normalized})
	if err != nil {
		return nil, err
	}
	usages := byPkg[normalized]
	if usages == nil {
		usages = []Usage{}
	}
	return usages, nil
}

// scanFile extracts usages of every target package from one Python source,
// in a single parse.
//
// Description:
//
//	Parses the content with tree-sitter and walks the tree in document
//	order. Import statements populate an alias table (import x, import x
//	as y, from x import y, from x import y as z); calls and attribute
//	accesses are reported as usages when their leftmost name resolves
//	through that table to a target package, and the recorded symbol is
//	the resolved dotted name, not the local spelling. Names never bound
//	by an import of a target are ignored, however suggestive they look.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing;
//     tree-sitter itself cannot be interrupted mid-parse.
//   - content: Raw Python source bytes. Must be valid UTF-8.
//   - filePath: Path used in the reported usages.
//   - targets: Packages to search for. Normalized internally, so "Flask"
//     and "flask" are the same target.
//
// Outputs:
//   - map[string][]Usage: Usage sites per normalized package, each list in
//     document order. Packages without usages have no entry.
//   - error: ErrFileTooLarge, ErrInvalidContent, a tree-sitter failure,
//     or a context error.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (s *Scanner) scanFile(ctx context.Context, content []byte, filePath string, targets []string) (map[string][]Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan canceled before start: %w", err)
	}
	if int64(len(content)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), s.maxFileSize)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	// New parser per call for thread safety.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan canceled after parse: %w", err)
	}

	root := tree.RootNode()
	if root == nil {
		return nil, errors.New("tree-sitter returned nil root node")
	}

	walk := &fileWalk{
		content: content,
		file:    filePath,
		targets: make(map[string]struct{}, len(targets)),
		aliases: make(map[string]string),
		usages:  make(map[string][]Usage, len(targets)),
	}
	for _, target := range targets {
		walk.targets[deps.Normalize(target)] = struct{}{}
	}
	walk.visit(root)
	return walk.usages, nil
}

// ScanTree scans every Python file under root for usages of one target.
// Single-target convenience over ScanTreeAll.
func (s *Scanner) ScanTree(ctx context.Context, root, target string) (*Report, error) {
	reports, err := s.ScanTreeAll(ctx, root, []string{target})
	if err != nil {
		return nil, err
	}
	return reports[deps.Normalize(target)], nil
}

// ScanTreeAll scans every Python file under root for usages of all the
// target packages in one pass, parsing each file exactly once.
//
// Description:
//
//	Walks the tree once collecting .py files, skipping hidden directories
//	and the excluded set, then parses the files in parallel. A file that
//	fails to parse is recorded in every report's Errors and never aborts
//	the scan of its siblings.
//
// Outputs:
//   - map[string]*Report: One report per normalized target package, each
//     with usages ordered by file then line. Never nil on success.
//   - error: Only for failures that prevent the scan entirely (unreadable
//     root, canceled context).
func (s *Scanner) ScanTreeAll(ctx context.Context, root string, targets []string) (map[string]*Report, error) {
	start := time.Now()

	normalized := make([]string, 0, len(targets))
	for _, target := range targets {
		pkg := deps.Normalize(target)
		if pkg == "" {
			continue
		}
		if !slices.Contains(normalized, pkg) {
			normalized = append(normalized, pkg)
		}
	}

	files, err := s.listPythonFiles(root)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	reports := make(map[string]*Report, len(normalized))
	for _, pkg := range normalized {
		reports[pkg] = &Report{
			Package:      pkg,
			FilesScanned: len(files),
			Usages:       make([]Usage, 0),
		}
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for _, file := range files {
		file := file
		group.Go(func() error {
			content, err := os.ReadFile(filepath.Join(root, file))
			if err == nil {
				var byPkg map[string][]Usage
				byPkg, err = s.scanFile(groupCtx, content, file, normalized)
				if err == nil {
					mu.Lock()
					for pkg, usages := range byPkg {
						reports[pkg].Usages = append(reports[pkg].Usages, usages...)
					}
					mu.Unlock()
					return nil
				}
			}
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			slog.Warn("file scan failed", "file", file, "error", err)
			mu.Lock()
			for _, pkg := range normalized {
				reports[pkg].Errors = append(reports[pkg].Errors, FileError{File: file, Error: err.Error()})
			}
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	totalUsages := 0
	for _, report := range reports {
		report.finalize()
		recordScanMetrics(ctx, time.Since(start), report)
		totalUsages += report.TotalUsages
	}
	slog.Info("scan complete",
		"packages", len(reports),
		"root", root,
		"usages", totalUsages,
		"files_scanned", len(files),
		"duration", time.Since(start))
	return reports, nil
}

// listPythonFiles returns root-relative paths of every .py file under root,
// in walk order.
func (s *Scanner) listPythonFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := s.excluded[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".py") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// fileWalk carries the per-file scan state: the alias table built from the
// imports seen so far and the usages collected per target package.
//
// The alias table is flat, not scoped. An import inside a function binds
// the name for the rest of the file, which matches how dynamic imports are
// almost always used and keeps the walk a single document-order pass.
type fileWalk struct {
	content []byte
	file    string
	targets map[string]struct{}

	// aliases maps a local name to the dotted module path (or module
	// attribute, for from-imports) it was bound to.
	aliases map[string]string
	usages  map[string][]Usage
}

func (w *fileWalk) visit(node *sitter.Node) {
	switch node.Type() {
	case "import_statement":
		w.visitImport(node)
		return
	case "import_from_statement":
		w.visitImportFrom(node)
		return
	case "call":
		if w.visitCall(node) {
			return
		}
	case "attribute":
		if pkg, ok := w.resolve(node); ok {
			w.record(node, UsageAttribute, pkg)
			return
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		w.visit(node.Child(i))
	}
}

// visitImport handles 'import foo' and 'import foo as bar'. One statement
// can import several modules, so it may count against several targets.
func (w *fileWalk) visitImport(node *sitter.Node) {
	matched := make(map[string]struct{})
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			path := w.text(child)
			// 'import a.b' binds the name 'a'.
			bound := rootModule(path)
			w.aliases[bound] = bound
			if pkg, ok := w.target(path); ok {
				matched[pkg] = struct{}{}
			}
		case "aliased_import":
			var path, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "dotted_name":
					path = w.text(grandchild)
				case "identifier":
					alias = w.text(grandchild)
				}
			}
			if alias != "" && path != "" {
				w.aliases[alias] = path
			}
			if pkg, ok := w.target(path); ok {
				matched[pkg] = struct{}{}
			}
		}
	}
	for pkg := range matched {
		w.record(node, UsageImport, pkg)
	}
}

// visitImportFrom handles 'from x import y', 'from x import y as z', and
// 'from x import *'. Relative imports have no module to match and are
// skipped.
func (w *fileWalk) visitImportFrom(node *sitter.Node) {
	var module string
	sawImport := false

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import":
			sawImport = true
		case "dotted_name":
			if !sawImport {
				module = w.text(child)
				continue
			}
			name := w.text(child)
			w.aliases[name] = module + "." + name
		case "aliased_import":
			var name, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "dotted_name":
					name = w.text(grandchild)
				case "identifier":
					alias = w.text(grandchild)
				}
			}
			if alias != "" && name != "" {
				w.aliases[alias] = module + "." + name
			}
		}
	}

	if pkg, ok := w.target(module); ok {
		w.record(node, UsageImport, pkg)
	}
}

// visitCall records a call usage when the callee resolves to a target.
// Returns true when it handled descending into the node itself.
func (w *fileWalk) visitCall(node *sitter.Node) bool {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return false
	}
	pkg, ok := w.resolve(fn)
	if !ok {
		return false
	}
	w.record(node, UsageCall, pkg)

	// The callee is part of the call usage; only the arguments can hold
	// further usages.
	if args := node.ChildByFieldName("arguments"); args != nil {
		w.visit(args)
	}
	return true
}

// resolve reports which target package, if any, an expression's leftmost
// name is bound to via the alias table.
func (w *fileWalk) resolve(node *sitter.Node) (string, bool) {
	name := leftmostIdentifier(node)
	if name == nil {
		return "", false
	}
	bound, ok := w.aliases[w.text(name)]
	if !ok {
		return "", false
	}
	return w.target(bound)
}

// target reports whether a dotted module path belongs to one of the target
// packages after normalization, and which one.
func (w *fileWalk) target(module string) (string, bool) {
	if module == "" {
		return "", false
	}
	pkg := deps.Normalize(rootModule(module))
	_, ok := w.targets[pkg]
	return pkg, ok
}

func (w *fileWalk) record(node *sitter.Node, kind UsageKind, pkg string) {
	expr := node
	if kind == UsageCall {
		if fn := node.ChildByFieldName("function"); fn != nil {
			expr = fn
		}
	}
	symbol := w.text(expr)
	if kind != UsageImport {
		symbol = w.resolvedSymbol(expr)
	}
	w.usages[pkg] = append(w.usages[pkg], Usage{
		File:      w.file,
		Line:      int(node.StartPoint().Row + 1),
		Column:    int(node.StartPoint().Column),
		Kind:      kind,
		Symbol:    symbol,
		Statement: firstLine(w.text(node)),
	})
}

// resolvedSymbol rewrites an expression's leftmost name to the module path
// it was imported as, so usages carry the real dotted name regardless of
// local aliasing: p.foo becomes pkg.foo and Flask becomes flask.Flask.
func (w *fileWalk) resolvedSymbol(node *sitter.Node) string {
	text := w.text(node)
	name := leftmostIdentifier(node)
	if name == nil {
		return text
	}
	local := w.text(name)
	bound, ok := w.aliases[local]
	if !ok || !strings.HasPrefix(text, local) {
		return text
	}
	return bound + text[len(local):]
}

func (w *fileWalk) text(node *sitter.Node) string {
	return string(w.content[node.StartByte():node.EndByte()])
}

// leftmostIdentifier descends through an attribute chain to the identifier
// it hangs off, e.g. the 'p' in p.foo.bar.
func leftmostIdentifier(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Type() {
		case "identifier":
			return node
		case "attribute":
			node = node.ChildByFieldName("object")
		default:
			return nil
		}
	}
	return nil
}

// rootModule returns the first component of a dotted module path.
func rootModule(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
