package driven

// ConfigStore holds collector settings under dot-notation keys such as
// "quota.daily_limit" or "sync.surveys". Typed getters return the zero value
// for a missing key or a value of the wrong type.
//
// Adapters may layer values that are readable but never persisted, such as
// environment overrides; Save writes only what was loaded or Set.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int
	// GetFloat accepts integer values too.
	GetFloat(key string) float64
	GetBool(key string) bool
	GetStringSlice(key string) []string

	// Set updates a key and persists the store.
	Set(key string, value any) error
	Save() error
	// Load re-reads the backing storage.
	Load() error

	// Path names where the store persists, for display.
	Path() string
}
