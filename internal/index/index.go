// Package index builds the SiteIndex: the immutable, site-wide view of every
// parsed document that directives are resolved against.
package index

import (
	"sort"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/models"
)

// TagCount is one tag and the number of documents carrying it.
type TagCount struct {
	Tag   string
	Count int
}

// SiteIndex is built once per build, after every document has been parsed,
// and is read-only afterwards. Callers must not modify returned documents.
type SiteIndex struct {
	docs   []*models.Document
	byTag  map[string][]*models.Document
	bySlug map[string]*models.Document
	tags   []TagCount
	dests  map[string]string
}

// Build aggregates docs into a SiteIndex. assets are the source-relative
// paths that will be copied verbatim; they take part in the output
// collision check.
func Build(docs []*models.Document, assets []string) (*SiteIndex, error) {
	if err := checkSlugs(docs); err != nil {
		return nil, err
	}
	dests, err := destinations(docs, assets)
	if err != nil {
		return nil, err
	}

	ordered := make([]*models.Document, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return less(ordered[i], ordered[j])
	})

	idx := &SiteIndex{
		docs:   ordered,
		byTag:  make(map[string][]*models.Document),
		bySlug: make(map[string]*models.Document, len(ordered)),
		dests:  dests,
	}
	for _, d := range ordered {
		idx.bySlug[d.Slug] = d
		for _, t := range d.Tags {
			idx.byTag[t] = append(idx.byTag[t], d)
		}
	}
	for t, tagged := range idx.byTag {
		idx.tags = append(idx.tags, TagCount{Tag: t, Count: len(tagged)})
	}
	sort.Slice(idx.tags, func(i, j int) bool {
		return idx.tags[i].Tag < idx.tags[j].Tag
	})
	return idx, nil
}

// less orders by date descending; undated documents go last; ties are
// broken by source path.
func less(a, b *models.Document) bool {
	switch {
	case a.Dated() && !b.Dated():
		return true
	case !a.Dated() && b.Dated():
		return false
	case a.Dated() && !a.Date.Equal(b.Date):
		return a.Date.After(b.Date)
	}
	return a.Path < b.Path
}

func checkSlugs(docs []*models.Document) error {
	owners := make(map[string][]string, len(docs))
	for _, d := range docs {
		owners[d.Slug] = append(owners[d.Slug], d.Path)
	}
	var dupes []string
	for slug, paths := range owners {
		if len(paths) > 1 {
			dupes = append(dupes, slug)
		}
	}
	if len(dupes) == 0 {
		return nil
	}
	sort.Strings(dupes)
	paths := owners[dupes[0]]
	sort.Strings(paths)
	return &apperr.DuplicateSlugError{Slug: dupes[0], Paths: paths}
}

func destinations(docs []*models.Document, assets []string) (map[string]string, error) {
	dests := make(map[string]string, len(docs)+len(assets))
	claims := make(map[string][]string)
	claim := func(dest, src string) {
		if _, ok := dests[dest]; !ok {
			dests[dest] = src
		}
		claims[dest] = append(claims[dest], src)
	}
	for _, d := range docs {
		claim(d.OutputPath, d.Path)
	}
	for _, a := range assets {
		claim(a, a)
	}

	var collisions []string
	for dest, srcs := range claims {
		if len(srcs) > 1 {
			collisions = append(collisions, dest)
		}
	}
	if len(collisions) == 0 {
		return dests, nil
	}
	sort.Strings(collisions)
	srcs := claims[collisions[0]]
	sort.Strings(srcs)
	return nil, &apperr.PathCollisionError{Dest: collisions[0], Sources: srcs}
}

// Len returns the number of indexed documents.
func (s *SiteIndex) Len() int {
	return len(s.docs)
}

// Documents returns every document in index order.
func (s *SiteIndex) Documents() []*models.Document {
	return clone(s.docs)
}

// Tagged returns the documents carrying tag in index order.
func (s *SiteIndex) Tagged(tag string) []*models.Document {
	return clone(s.byTag[tag])
}

// Posts returns the dated documents in index order, restricted to tag when
// it is not empty and capped at limit when limit > 0.
func (s *SiteIndex) Posts(tag string, limit int) []*models.Document {
	src := s.docs
	if tag != "" {
		src = s.byTag[tag]
	}
	out := make([]*models.Document, 0, len(src))
	for _, d := range src {
		if !d.Dated() {
			// Undated documents sort last, nothing dated follows.
			break
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, d)
	}
	return out
}

// Tags returns every tag with its document count, sorted by tag.
func (s *SiteIndex) Tags() []TagCount {
	out := make([]TagCount, len(s.tags))
	copy(out, s.tags)
	return out
}

// Lookup returns the document with the given slug.
func (s *SiteIndex) Lookup(slug string) (*models.Document, bool) {
	d, ok := s.bySlug[slug]
	return d, ok
}

// Destinations returns output path → source path for every page and asset.
func (s *SiteIndex) Destinations() map[string]string {
	out := make(map[string]string, len(s.dests))
	for k, v := range s.dests {
		out[k] = v
	}
	return out
}

func clone(docs []*models.Document) []*models.Document {
	out := make([]*models.Document, len(docs))
	copy(out, docs)
	return out
}
