package fingerprint

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// FileEntry is one file of a manifest. Path is slash-separated and
// relative to the manifest root; Digest is the full hex digest.
type FileEntry struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

// Manifest lists the files of a tree sorted by path.
type Manifest struct {
	Algorithm Algorithm   `json:"algorithm"`
	Files     []FileEntry `json:"files"`
}

// Digest hashes the manifest listing: one "<path>:<first 8 hex chars>"
// line per file, in path order, joined by newlines.
func (m *Manifest) Digest() string {
	h := NewHasher(m.Algorithm)
	lines := make([]string, len(m.Files))
	for i, f := range m.Files {
		lines[i] = f.Path + ":" + f.Digest[:EntryLen]
	}
	return h.Content([]byte(strings.Join(lines, "\n")))
}

// Lookup returns the entry for p.
func (m *Manifest) Lookup(p string) (FileEntry, bool) {
	i := sort.Search(len(m.Files), func(i int) bool { return m.Files[i].Path >= p })
	if i < len(m.Files) && m.Files[i].Path == p {
		return m.Files[i], true
	}
	return FileEntry{}, false
}

// Hidden reports whether any segment of the slash-separated path p begins
// with a dot.
func Hidden(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}

// Directory returns the SHA-256 content address of the tree under root.
func Directory(ctx context.Context, root string) (string, error) {
	return defaultHasher.Directory(ctx, root)
}

// Directory returns the content address of the tree under root. Hidden
// files and directories are skipped. The listing is sorted over full
// relative paths so the result does not depend on filesystem order.
func (h Hasher) Directory(ctx context.Context, root string) (string, error) {
	m, err := h.BuildManifest(ctx, root)
	if err != nil {
		return "", err
	}
	return m.Digest(), nil
}

// BuildManifest walks root and hashes every regular, non-hidden file.
// Files are read in parallel; entries are placed by sorted index.
func (h Hasher) BuildManifest(ctx context.Context, root string) (*Manifest, error) {
	var rels []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(rels)

	m := &Manifest{Algorithm: h.alg, Files: make([]FileEntry, len(rels))}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, rel := range rels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return err
			}
			m.Files[i] = FileEntry{Path: rel, Digest: h.Hex(data), Size: int64(len(data))}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildManifest builds a SHA-256 manifest of root.
func BuildManifest(ctx context.Context, root string) (*Manifest, error) {
	return defaultHasher.BuildManifest(ctx, root)
}

// ManifestFromFiles builds a manifest from in-memory file contents keyed by
// relative path, applying the same hidden-path rule as BuildManifest.
func (h Hasher) ManifestFromFiles(files map[string]string) *Manifest {
	m := &Manifest{Algorithm: h.alg}
	for p, content := range files {
		rel := path.Clean(filepath.ToSlash(p))
		if Hidden(rel) {
			continue
		}
		m.Files = append(m.Files, FileEntry{Path: rel, Digest: h.Hex([]byte(content)), Size: int64(len(content))})
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
	return m
}

// ManifestFromFiles builds a SHA-256 manifest from in-memory contents.
func ManifestFromFiles(files map[string]string) *Manifest {
	return defaultHasher.ManifestFromFiles(files)
}
