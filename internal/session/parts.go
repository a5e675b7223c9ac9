package session

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultMaxFileBytes caps the content of one attached file part.
const DefaultMaxFileBytes = 64 << 10

var reFileRef = regexp.MustCompile(`(?:^|\s)@([^\s]+)`)

// ResolveParts turns prompt into a text part plus one file part per @path
// naming a regular file inside dir. References that escape dir or do not
// exist stay plain text.
func ResolveParts(dir, prompt string, maxBytes int64) ([]Part, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	parts := []Part{{Type: PartText, Text: prompt}}

	seen := map[string]bool{}
	for _, m := range reFileRef.FindAllStringSubmatch(prompt, -1) {
		ref := strings.TrimRight(m[1], ".,;:!?)\"'")
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true

		p, ok := within(dir, ref)
		if !ok {
			continue
		}
		part, err := readFilePart(p, ref, maxBytes)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, errNotRegular) {
				continue
			}
			return nil, fmt.Errorf("attach %s: %w", ref, err)
		}
		parts = append(parts, part)
	}
	return parts, nil
}

var errNotRegular = errors.New("not a regular file")

func within(dir, ref string) (string, bool) {
	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}

func readFilePart(path, ref string, maxBytes int64) (Part, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Part{}, err
	}
	if !st.Mode().IsRegular() {
		return Part{}, errNotRegular
	}
	f, err := os.Open(path)
	if err != nil {
		return Part{}, err
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return Part{}, err
	}
	part := Part{Type: PartFile, Path: ref}
	if int64(len(b)) > maxBytes {
		b = b[:maxBytes]
		part.Truncated = true
	}
	part.Text = string(b)
	return part, nil
}
