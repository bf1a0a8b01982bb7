package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// extensionTypes maps known documentation extensions onto MIME types
// ahead of content sniffing.
var extensionTypes = map[string]string{
	".html": "text/html", ".htm": "text/html", ".xhtml": "application/xhtml+xml",
	".md": "text/markdown", ".markdown": "text/markdown", ".mdx": "text/markdown",
	".json": "application/json",
	".txt":  "text/plain", ".rst": "text/plain", ".adoc": "text/plain",
	".go": "text/x-go", ".py": "text/x-python", ".js": "application/javascript",
	".ts": "application/typescript", ".rs": "text/x-rust", ".java": "text/x-java",
	".rb": "text/x-ruby", ".c": "text/x-c", ".h": "text/x-c", ".cpp": "text/x-c++",
	".sh": "text/x-shellscript", ".yaml": "text/plain", ".yml": "text/plain",
	".zip": "application/zip", ".tar": "application/x-tar",
	".tgz": "application/gzip", ".gz": "application/gzip",
}

// File reads local paths, given bare or as file:// URLs.
type File struct{}

var _ driven.Fetcher = (*File)(nil)

// NewFile creates the file fetcher.
func NewFile() *File {
	return &File{}
}

// CanFetch reports whether the URL is a local path or file URL.
func (f *File) CanFetch(rawURL string) bool {
	if strings.HasPrefix(rawURL, "file://") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		// Bare paths have no scheme.
		return true
	}
	return false
}

// Fetch reads the file, detecting MIME by extension then sniffing.
func (f *File) Fetch(_ context.Context, rawURL string, opts driven.FetchOptions) (*driven.FetchResult, error) {
	path := localPath(rawURL)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.FetchError{Kind: domain.FetchNotFound, URL: rawURL, Err: err}
		}
		if os.IsPermission(err) {
			return nil, &domain.FetchError{Kind: domain.FetchUnauthorized, URL: rawURL, Err: err}
		}
		return nil, &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Err: err}
	}
	if info.IsDir() {
		return nil, &domain.FetchError{Kind: domain.FetchPermanent, URL: rawURL, Err: domain.ErrInvalidInput}
	}
	if opts.MaxSize > 0 && info.Size() > int64(opts.MaxSize) {
		return nil, &domain.FetchError{Kind: domain.FetchTooLarge, URL: rawURL}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Err: err}
	}

	return &driven.FetchResult{
		Content:      content,
		ContentType:  DetectMIME(path, content),
		FinalURL:     rawURL,
		Status:       http.StatusOK,
		LastModified: info.ModTime().UTC().Format(http.TimeFormat),
	}, nil
}

// Probe checks existence without reading the content.
func (f *File) Probe(_ context.Context, rawURL string, _ driven.FetchOptions) (*driven.ProbeResult, error) {
	path := localPath(rawURL)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &driven.ProbeResult{Status: http.StatusNotFound}, nil
		}
		return nil, &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Err: err}
	}
	return &driven.ProbeResult{
		Status:       http.StatusOK,
		ContentType:  extensionTypes[strings.ToLower(filepath.Ext(path))],
		LastModified: info.ModTime().UTC().Format(http.TimeFormat),
	}, nil
}

// DetectMIME resolves a MIME type by extension first, sniffing second.
func DetectMIME(path string, content []byte) string {
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	ct, _ := parseContentType(http.DetectContentType(content))
	return ct
}

// localPath strips the file scheme from a URL.
func localPath(rawURL string) string {
	if after, ok := strings.CutPrefix(rawURL, "file://"); ok {
		return after
	}
	return rawURL
}
