package store

// dataStore is the minimal read/write surface shared by Store and
// mutexStore, used to run the same concurrency property tests against
// both concurrency models.
type dataStore interface {
	Get(key string) (value []byte, reads, writes uint64, ok bool)
	Set(key string, value []byte)
}

var (
	_ dataStore = (*Store)(nil)
	_ dataStore = (*mutexStore)(nil)
)
