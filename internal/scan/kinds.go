package scan

import (
	"path/filepath"
	"strings"
)

// DocKind is the coarse classification of a macro-enabled file.
type DocKind string

const (
	WordMacro       DocKind = "Word Macro"
	ExcelMacro      DocKind = "Excel Macro"
	PowerPointMacro DocKind = "PowerPoint Macro"
)

// macroExtensions maps every supported macro-enabled extension to its
// document family.
var macroExtensions = map[string]DocKind{
	".docm": WordMacro,
	".dotm": WordMacro,
	".xlsm": ExcelMacro,
	".xltm": ExcelMacro,
	".xlam": ExcelMacro,
	".pptm": PowerPointMacro,
	".potm": PowerPointMacro,
	".ppsm": PowerPointMacro,
	".ppam": PowerPointMacro,
}

// KindForPath returns the document family for path and whether its extension
// is in the supported set. Matching is case-insensitive.
func KindForPath(path string) (DocKind, bool) {
	kind, ok := macroExtensions[strings.ToLower(filepath.Ext(path))]
	return kind, ok
}
