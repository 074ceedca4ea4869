package catalog

// Catalog is the read/write surface of the build catalog. Consumers depend
// on it rather than on *DB so they can be tested with fakes.
type Catalog interface {
	ReplacePages(pages []PageRow) error
	RecordBuild(b BuildRow) (int64, error)
	LatestBuild() (*BuildRow, error)
	GetPage(slug string) (*PageRow, error)
	ListPages(tag string, limit, offset int) ([]PageRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

var _ Catalog = (*DB)(nil)
