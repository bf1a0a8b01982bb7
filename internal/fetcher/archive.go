package fetcher

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// ArchiveEntry is one file expanded from a ZIP or TAR archive.
type ArchiveEntry struct {
	// URL is the synthetic location: zip://outer!/inner or
	// tar://outer!/inner.
	URL string

	// Name is the inner path.
	Name string

	// Content is the file body.
	Content []byte

	// ContentType is detected from the inner name and content.
	ContentType string
}

// IsArchive reports whether the content type names an expandable archive.
func IsArchive(contentType string) bool {
	switch contentType {
	case "application/zip", "application/x-tar", "application/gzip", "application/x-gzip":
		return true
	}
	return false
}

// ExpandArchive enumerates the inner entries of an archive safely:
// traversal segments and absolute paths are skipped, each entry gets a
// synthetic URL keyed by the outer location.
func ExpandArchive(outerURL, contentType string, content []byte, maxEntrySize int) ([]ArchiveEntry, error) {
	switch contentType {
	case "application/zip":
		return expandZip(outerURL, content, maxEntrySize)
	case "application/x-tar":
		return expandTar(outerURL, content, maxEntrySize, false)
	case "application/gzip", "application/x-gzip":
		return expandTar(outerURL, content, maxEntrySize, true)
	default:
		return nil, fmt.Errorf("%w: not an archive: %s", domain.ErrUnsupportedType, contentType)
	}
}

// expandZip walks a ZIP archive.
func expandZip(outerURL string, content []byte, maxEntrySize int) ([]ArchiveEntry, error) {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}

	var entries []ArchiveEntry //nolint:prealloc // directories and unsafe names are skipped
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !safeEntryName(f.Name) {
			continue
		}
		if maxEntrySize > 0 && f.UncompressedSize64 > uint64(maxEntrySize) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening zip entry %s: %w", f.Name, err)
		}
		data, err := readBounded(rc, maxEntrySize)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading zip entry %s: %w", f.Name, err)
		}
		entries = append(entries, makeEntry("zip", outerURL, f.Name, data))
	}
	return entries, nil
}

// expandTar walks a TAR archive, optionally gzip-compressed.
func expandTar(outerURL string, content []byte, maxEntrySize int, gzipped bool) ([]ArchiveEntry, error) {
	var src io.Reader = bytes.NewReader(content)
	if gzipped {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("opening gzip: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	tr := tar.NewReader(src)
	var entries []ArchiveEntry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !safeEntryName(hdr.Name) {
			continue
		}
		if maxEntrySize > 0 && hdr.Size > int64(maxEntrySize) {
			continue
		}
		data, err := readBounded(tr, maxEntrySize)
		if err != nil {
			return nil, fmt.Errorf("reading tar entry %s: %w", hdr.Name, err)
		}
		entries = append(entries, makeEntry("tar", outerURL, hdr.Name, data))
	}
	return entries, nil
}

// safeEntryName rejects traversal segments and absolute paths.
func safeEntryName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return false
	}
	clean := path.Clean(name)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

// makeEntry builds the synthetic entry for an inner file.
func makeEntry(scheme, outerURL, name string, data []byte) ArchiveEntry {
	inner := path.Clean(name)
	return ArchiveEntry{
		URL:         fmt.Sprintf("%s://%s!/%s", scheme, strings.TrimPrefix(outerURL, "file://"), inner),
		Name:        inner,
		Content:     data,
		ContentType: DetectMIME(inner, data),
	}
}
