// Package vba extracts VBA macro source from macro-enabled Office files.
//
// Modern Office files (.docm, .xlsm, .pptm and friends) are ZIP archives
// carrying an OLE compound file named vbaProject.bin; legacy files are the
// compound file directly. Module source inside the project streams is stored
// as MS-OVBA compressed containers. The exported methods are deliberately
// forgiving: callers treat any failure as "no macro findings".
package vba

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/richardlehane/mscfb"
	"github.com/richardlehane/msoleps"
)

var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// ErrNotContainer is returned when the file is neither an OOXML archive nor
// an OLE compound file.
var ErrNotContainer = errors.New("vba: not an OOXML or OLE container")

// Extractor implements the macro-decoder collaborator over mscfb.
// The zero value is ready to use.
type Extractor struct{}

// DetectMacros reports whether path carries a VBA project.
func (e *Extractor) DetectMacros(path string) (bool, error) {
	project, err := projectBytes(path)
	if err != nil {
		return false, err
	}
	return project != nil, nil
}

// ExtractCode returns the decompressed source of every module stream in the
// file's VBA project. Files without a project yield an empty slice.
func (e *Extractor) ExtractCode(path string) ([]string, error) {
	project, err := projectBytes(path)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, nil
	}
	return modulesFromProject(project)
}

// projectBytes locates the VBA project compound file. Returns (nil, nil)
// when the container is valid but has no project.
func projectBytes(path string) ([]byte, error) {
	head := make([]byte, 8)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := io.ReadFull(f, head); err != nil {
		return nil, fmt.Errorf("vba: read header of %s: %w", path, err)
	}

	switch {
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return projectFromZip(path)
	case bytes.HasPrefix(head, oleMagic):
		return os.ReadFile(path)
	default:
		return nil, ErrNotContainer
	}
}

// projectFromZip pulls vbaProject.bin from an OOXML archive. Word, Excel and
// PowerPoint store it under different part directories, so match on basename.
func projectFromZip(path string) ([]byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("vba: open archive %s: %w", path, err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		name := entry.Name
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if !strings.EqualFold(name, "vbaProject.bin") {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("vba: open %s in %s: %w", entry.Name, path, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("vba: read %s in %s: %w", entry.Name, path, err)
		}
		return data, nil
	}
	return nil, nil
}

// modulesFromProject walks the compound file's streams and decompresses
// every module source it can find. Property-set streams are surfaced as
// debug traces instead of being scanned.
func modulesFromProject(project []byte) ([]string, error) {
	doc, err := mscfb.New(bytes.NewReader(project))
	if err != nil {
		return nil, fmt.Errorf("vba: parse compound file: %w", err)
	}

	var modules []string
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Size == 0 {
			continue
		}
		if msoleps.IsMSOLEPS(entry.Initial) {
			logPropertyStream(entry.Name, doc)
			continue
		}
		stream := make([]byte, entry.Size)
		n, rerr := io.ReadFull(doc, stream)
		if rerr != nil && n == 0 {
			continue
		}
		for _, src := range sourceFromStream(stream[:n]) {
			modules = append(modules, src)
		}
	}
	return modules, nil
}

// attributeMarker locates compressed module source: the first token group of
// a module stream is a run of literals starting with "Attribute", preceded
// by a zero flag byte. The container itself begins 3 bytes earlier
// (signature plus chunk header).
var attributeMarker = []byte("\x00Attribut")

// sourceFromStream decompresses every module source container found in a raw
// project stream. Streams without the marker (dir, _VBA_PROJECT, string
// tables) contribute nothing.
func sourceFromStream(stream []byte) []string {
	var out []string
	for i := 0; i+len(attributeMarker) <= len(stream); {
		j := bytes.Index(stream[i:], attributeMarker)
		if j < 0 {
			break
		}
		at := i + j
		if at >= 3 {
			if src, err := DecompressContainer(stream[at-3:]); err == nil {
				out = append(out, string(src))
				break // one source container per module stream
			}
		}
		i = at + 1
	}
	return out
}

// logPropertyStream parses an OLE property-set stream (SummaryInformation
// and friends) for trace-level diagnostics.
func logPropertyStream(name string, r io.Reader) {
	props := msoleps.New()
	if err := props.Reset(r); err != nil {
		return
	}
	for _, p := range props.Property {
		slog.Debug("vba: document property", "stream", name, "name", p.Name, "value", fmt.Sprint(p))
	}
}
