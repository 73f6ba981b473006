package fingerprint

import "sort"

type DriftOp string

const (
	// DriftMissing: expected file absent from the actual tree.
	DriftMissing DriftOp = "missing"
	// DriftModified: both trees have the file with different content.
	DriftModified DriftOp = "modified"
	// DriftExtra: actual tree has a file the expected one lacks.
	DriftExtra DriftOp = "extra"
)

type FileDrift struct {
	Path string
	Op   DriftOp
}

// DiffManifests compares two manifests by digest and returns every
// differing path in path order. Manifests built with different algorithms
// report every shared file as modified.
func DiffManifests(expected, actual *Manifest) []FileDrift {
	sameAlg := expected.Algorithm == actual.Algorithm

	var drift []FileDrift
	for _, ef := range expected.Files {
		af, exists := actual.Lookup(ef.Path)
		switch {
		case !exists:
			drift = append(drift, FileDrift{Path: ef.Path, Op: DriftMissing})
		case !sameAlg || af.Digest != ef.Digest:
			drift = append(drift, FileDrift{Path: ef.Path, Op: DriftModified})
		}
	}
	for _, af := range actual.Files {
		if _, ok := expected.Lookup(af.Path); !ok {
			drift = append(drift, FileDrift{Path: af.Path, Op: DriftExtra})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].Path < drift[j].Path })
	return drift
}
