package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

// Options controls how files are read into a table.
type Options struct {
	// Delimiter for CSV. If 0, picks '\t' for .tsv and ',' otherwise.
	Delimiter rune
	// SheetName selects an XLSX sheet; SheetIndex (1-based) is used when empty.
	SheetName  string
	SheetIndex int
	// MaxRows limits rows read; 0 means unlimited.
	MaxRows int
	// MaxFileSizeMB rejects larger files; 0 disables the check.
	MaxFileSizeMB int
	// AllowedTypes restricts file extensions (without dot); empty allows all registered.
	AllowedTypes []string
}

// DefaultOptions mirrors the upload limits of the dashboard.
func DefaultOptions() Options {
	return Options{
		SheetIndex:    1,
		MaxFileSizeMB: 50,
		AllowedTypes:  []string{"csv", "tsv", "xlsx", "json"},
	}
}

// Parser reads one tabular format.
type Parser interface {
	CanParse(filename string) bool
	Parse(path string, opt Options) (*table.Table, error)
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// ErrUnsupported indicates a format is not supported.
var ErrUnsupported = errors.New("unsupported file format")

// FileTooLargeError is returned when a file exceeds Options.MaxFileSizeMB.
type FileTooLargeError struct {
	Path   string
	SizeMB float64
	Limit  int
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file %s is %.1f MB (limit %d MB)", filepath.Base(e.Path), e.SizeMB, e.Limit)
}

// ParseFile selects a parser based on the file extension and returns the table.
func ParseFile(path string, opt Options) (*table.Table, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if len(opt.AllowedTypes) > 0 && !allowed(ext, opt.AllowedTypes) {
		return nil, fmt.Errorf("%w: .%s (allowed: %s)", ErrUnsupported, ext, strings.Join(opt.AllowedTypes, ", "))
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if opt.MaxFileSizeMB > 0 {
		mb := float64(info.Size()) / (1024 * 1024)
		if mb > float64(opt.MaxFileSizeMB) {
			return nil, &FileTooLargeError{Path: path, SizeMB: mb, Limit: opt.MaxFileSizeMB}
		}
	}
	for _, p := range registry {
		if p.CanParse(path) {
			t, err := p.Parse(path, opt)
			if err != nil {
				return nil, err
			}
			t.Name = filepath.Base(path)
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
}

func allowed(ext string, types []string) bool {
	for _, t := range types {
		if strings.EqualFold(strings.TrimPrefix(t, "."), ext) {
			return true
		}
	}
	return false
}

func init() {
	Register(csvParser{})
	Register(jsonParser{})
	Register(xlsxParser{})
}
