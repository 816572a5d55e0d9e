package manifest

import "sort"

// Status describes how a manifest source was resolved.
type Status string

const (
	// StatusFound means a candidate file's hash matched the declared hash.
	StatusFound Status = "found"
	// StatusEmbedded means the manifest embeds the source content inline.
	StatusEmbedded Status = "embedded"
	// StatusMissing means no candidate file matched the declared hash.
	StatusMissing Status = "missing"
)

// SourceResult is the reconciliation outcome for one manifest source.
type SourceResult struct {
	Path        string
	Status      Status
	Valid       bool
	Expected    string
	MatchedFile string
}

// Reconciliation is the result of matching candidate files against a
// manifest. Sources are ordered by path; Unnecessary lists candidate files
// whose hash matched no manifest source.
type Reconciliation struct {
	Sources     []SourceResult
	Unnecessary []string

	// Resolved maps source path to content for every satisfied source,
	// ready for a metadata submission.
	Resolved map[string]string
}

// AllSatisfied reports whether every manifest source resolved with a valid
// hash. Submission must not proceed otherwise.
func (r *Reconciliation) AllSatisfied() bool {
	for _, s := range r.Sources {
		if s.Status == StatusMissing || !s.Valid {
			return false
		}
	}
	return true
}

// Reconcile matches candidate files against the manifest's declared source
// hashes. Matching is by content hash only, never by file name, and the
// result is deterministic regardless of the order of files.
func Reconcile(m *Manifest, files []File) *Reconciliation {
	// Hash every candidate once. Files with identical content share a hash;
	// the lexicographically smallest name wins so results do not depend on
	// argument order.
	byHash := make(map[string][]int, len(files))
	hashes := make([]string, len(files))
	for i, f := range files {
		h := normalizeHash(Keccak256(f.Content))
		hashes[i] = h
		byHash[h] = append(byHash[h], i)
	}
	for _, idxs := range byHash {
		sort.Slice(idxs, func(a, b int) bool { return files[idxs[a]].Name < files[idxs[b]].Name })
	}

	paths := make([]string, 0, len(m.Sources))
	for path := range m.Sources {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	result := &Reconciliation{Resolved: make(map[string]string)}
	consumed := make(map[int]bool)

	for _, path := range paths {
		entry := m.Sources[path]
		expected := normalizeHash(entry.Keccak256)

		if entry.Content != "" {
			valid := normalizeHash(Keccak256([]byte(entry.Content))) == expected
			result.Sources = append(result.Sources, SourceResult{
				Path:     path,
				Status:   StatusEmbedded,
				Valid:    valid,
				Expected: entry.Keccak256,
			})
			if valid {
				result.Resolved[path] = entry.Content
			}
			continue
		}

		matched := -1
		for _, idx := range byHash[expected] {
			if !consumed[idx] {
				matched = idx
				break
			}
		}
		if matched == -1 {
			result.Sources = append(result.Sources, SourceResult{
				Path:     path,
				Status:   StatusMissing,
				Expected: entry.Keccak256,
			})
			continue
		}

		consumed[matched] = true
		result.Sources = append(result.Sources, SourceResult{
			Path:        path,
			Status:      StatusFound,
			Valid:       true,
			Expected:    entry.Keccak256,
			MatchedFile: files[matched].Name,
		})
		result.Resolved[path] = string(files[matched].Content)
	}

	// Embedded sources never consume candidates, so any candidate whose
	// hash equals an embedded source's hash still counts as used.
	embedded := make(map[string]bool)
	for _, entry := range m.Sources {
		if entry.Content != "" {
			embedded[normalizeHash(entry.Keccak256)] = true
		}
	}
	for i, f := range files {
		if !consumed[i] && !embedded[hashes[i]] {
			result.Unnecessary = append(result.Unnecessary, f.Name)
		}
	}
	sort.Strings(result.Unnecessary)

	return result
}
