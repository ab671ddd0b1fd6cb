package fileutil

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// compound lists the formats that may hide behind a trailing .txt, as in
// sets.gmt.txt
var compound = map[string]bool{"gmt": true, "gmx": true, "grp": true, "gct": true}

// SplitExt returns the base name of path without directory and its
// lower-cased extension. A trailing .gz is ignored, and name.gmt.txt style
// names report the inner format.
func SplitExt(path string) (base, ext string) {
	name := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		name = name[:len(name)-3]
	}
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return name, ""
	}
	base, ext = name[:dot], strings.ToLower(name[dot+1:])
	if ext == "txt" {
		if inner := strings.LastIndexByte(base, '.'); inner >= 0 {
			if e := strings.ToLower(base[inner+1:]); compound[e] {
				return base[:inner], e
			}
		}
	}
	return base, ext
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

// Open opens path for reading, decompressing it when the name ends in .gz
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	return gzipFile{Reader: gz, f: f}, nil
}

// Exists reports whether path names a regular file
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// FindSibling looks next to path for the first of names that exists, plain
// or gzipped, and returns its path.
func FindSibling(path string, names ...string) (string, bool) {
	dir := filepath.Dir(path)
	for _, name := range names {
		for _, candidate := range []string{filepath.Join(dir, name), filepath.Join(dir, name) + ".gz"} {
			if Exists(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}
