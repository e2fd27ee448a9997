package memo

// CategoryName is the category reported for every memoized entry.
const CategoryName = "st_memo"

// CacheStat describes a single cached entry. The struct is comparable so
// callers can compare results as sets.
type CacheStat struct {
	CategoryName string
	CacheName    string
	ByteLength   int
}

// StatsProvider exposes cache statistics.
type StatsProvider interface {
	GetStats() []CacheStat
}

var _ StatsProvider = (*Registry)(nil)

// GetMemoStatsProvider returns the stats provider of the default registry.
func GetMemoStatsProvider() StatsProvider {
	return Default()
}
