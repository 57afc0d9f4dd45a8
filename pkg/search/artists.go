package search

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/sw33tLie/fanmirror/pkg/storage"
)

// LockTimeout bounds how long an operation waits for another process
// holding the index.
var LockTimeout = 5 * time.Second

// ArtistIndex is the full-text index behind artist lookups. A disk index is
// opened for each operation and closed right after, so several processes can
// share it.
type ArtistIndex struct {
	path string
	mem  bleve.Index
}

// Result is a single artist hit.
type Result struct {
	ID      string
	Service string
	Name    string
	Score   float64
}

// OpenArtistIndex prepares the index at path, creating it when missing.
func OpenArtistIndex(path string) (*ArtistIndex, error) {
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
		return nil, mkErr
	}
	a := &ArtistIndex{path: path}
	if err := a.with(true, func(bleve.Index) error { return nil }); err != nil {
		return nil, err
	}
	return a, nil
}

// NewMemArtistIndex builds an index that lives only in memory.
func NewMemArtistIndex() (*ArtistIndex, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, err
	}
	return &ArtistIndex{mem: idx}, nil
}

func (a *ArtistIndex) Close() error {
	if a.mem != nil {
		return a.mem.Close()
	}
	return nil
}

// with runs fn against the index. Disk indexes are opened with a lock
// timeout so a busy index fails instead of blocking.
func (a *ArtistIndex) with(readOnly bool, fn func(bleve.Index) error) error {
	if a.mem != nil {
		return fn(a.mem)
	}

	idx, err := bleve.OpenUsing(a.path, map[string]interface{}{
		"bolt_timeout": LockTimeout.String(),
		"read_only":    readOnly,
	})
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(a.path, buildIndexMapping())
	}
	if err != nil {
		return fmt.Errorf("opening artist index: %w", err)
	}
	defer idx.Close()
	return fn(idx)
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	name := bleve.NewTextFieldMapping()
	name.Analyzer = standard.Name
	name.Store = true

	id := bleve.NewTextFieldMapping()
	id.Analyzer = keyword.Name
	id.Store = true

	service := bleve.NewTextFieldMapping()
	service.Analyzer = keyword.Name
	service.Store = true

	dm.AddFieldMappingsAt("name", name)
	dm.AddFieldMappingsAt("artist_id", id)
	dm.AddFieldMappingsAt("service", service)

	im.DefaultMapping = dm
	return im
}

func docID(service, id string) string {
	return service + ":" + id
}

// Reindex replaces the indexed document of every given artist.
func (a *ArtistIndex) Reindex(artists []storage.Artist) error {
	return a.with(false, func(idx bleve.Index) error {
		batch := idx.NewBatch()
		for _, ar := range artists {
			if err := batch.Index(docID(ar.Service, ar.ID), map[string]any{
				"name":      ar.Name,
				"artist_id": ar.ID,
				"service":   ar.Service,
			}); err != nil {
				return err
			}
		}
		return idx.Batch(batch)
	})
}

func (a *ArtistIndex) Count() (n uint64, err error) {
	err = a.with(true, func(idx bleve.Index) error {
		n, err = idx.DocCount()
		return err
	})
	return n, err
}

// Search matches names by term and prefix, and ids exactly.
func (a *ArtistIndex) Search(query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var qs []bleveQuery.Query
	for _, tok := range strings.Fields(query) {
		qm := bleve.NewMatchQuery(tok)
		qm.SetField("name")
		qm.SetBoost(2.0)
		qs = append(qs, qm)

		qp := bleve.NewPrefixQuery(strings.ToLower(tok))
		qp.SetField("name")
		qs = append(qs, qp)

		qi := bleve.NewTermQuery(tok)
		qi.SetField("artist_id")
		qi.SetBoost(3.0)
		qs = append(qs, qi)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"name", "artist_id", "service"}
	var res *bleve.SearchResult
	err := a.with(true, func(idx bleve.Index) (err error) {
		res, err = idx.Search(req)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		r := Result{Score: h.Score}
		if v, ok := h.Fields["artist_id"].(string); ok {
			r.ID = v
		}
		if v, ok := h.Fields["service"].(string); ok {
			r.Service = v
		}
		if v, ok := h.Fields["name"].(string); ok {
			r.Name = v
		}
		out = append(out, r)
	}
	return out, nil
}
