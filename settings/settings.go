// Package settings implements the credential/tunable cache the rest of
// the engine reads instead of touching environment or database state
// directly. It is a process-wide, TTL-checked map: cheap to read on
// every request, cheap to override in tests.
package settings

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a cached value is trusted before Get re-reads
// the backing Store.
const DefaultTTL = 5 * time.Minute

// Store is the backing persistence for settings that outlive the
// process (e.g. a Postgres table or a config file). The cache falls back
// to the environment when Store is nil or returns an error — it never
// fails a read outright.
type Store interface {
	// GetSetting returns the raw string value for key, or ok=false if
	// the key is absent.
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
}

type entry struct {
	value    string
	storedAt time.Time
	pinned   bool // set by Preset: never expires
}

// Cache is a TTL-checked, process-wide key/value cache with named
// fallback defaults for every tunable the core reads.
type Cache struct {
	mu    sync.RWMutex
	vals  map[string]entry
	ttl   time.Duration
	store Store
}

// New returns a Cache backed by store. store may be nil, in which case
// every Get falls through to the environment and then the named default.
func New(store Store) *Cache {
	return &Cache{
		vals:  make(map[string]entry),
		ttl:   DefaultTTL,
		store: store,
	}
}

// SetTTL overrides the default 5-minute TTL. Intended for tests.
func (c *Cache) SetTTL(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = d
}

// Preset seeds the cache with values that bypass the Store entirely
// (used to apply Config.InitialSettings at startup).
func (c *Cache) Preset(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, v := range values {
		c.vals[k] = entry{value: v, storedAt: now, pinned: true}
	}
}

// Get returns the string value for key: cached value if fresh, else a
// Store read, else the environment variable key, else the named
// default table. A Store error is swallowed (fails open to env).
func (c *Cache) Get(ctx context.Context, key string) string {
	c.mu.RLock()
	e, ok := c.vals[key]
	fresh := ok && (e.pinned || time.Since(e.storedAt) < c.ttl)
	c.mu.RUnlock()
	if fresh {
		return e.value
	}

	if c.store != nil {
		if v, ok, err := c.store.GetSetting(ctx, key); err == nil && ok {
			c.mu.Lock()
			c.vals[key] = entry{value: v, storedAt: time.Now()}
			c.mu.Unlock()
			return v
		}
		// Store error or miss: fail open to environment below.
	}

	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	if v, ok := defaults[key]; ok {
		return v
	}
	return ""
}

// GetBool parses Get(key) as a bool, falling back to def on any parse
// failure or empty value.
func (c *Cache) GetBool(ctx context.Context, key string, def bool) bool {
	v := strings.TrimSpace(c.Get(ctx, key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetInt parses Get(key) as an int, falling back to def.
func (c *Cache) GetInt(ctx context.Context, key string, def int) int {
	v := strings.TrimSpace(c.Get(ctx, key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetFloat parses Get(key) as a float64, falling back to def.
func (c *Cache) GetFloat(ctx context.Context, key string, def float64) float64 {
	v := strings.TrimSpace(c.Get(ctx, key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Invalidate drops a cached value so the next Get re-reads the Store.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vals, key)
}

// Named setting keys the core reads. Kept as typed constants so callers
// never hand-type a key string.
const (
	KeyModelChoice                    = "MODEL_CHOICE"
	KeyUseContextualEmbeddings        = "USE_CONTEXTUAL_EMBEDDINGS"
	KeyUseHybridSearch                = "USE_HYBRID_SEARCH"
	KeyUseReranking                   = "USE_RERANKING"
	KeyUseAgenticRAG                  = "USE_AGENTIC_RAG"
	KeyEmbeddingBatchSize             = "EMBEDDING_BATCH_SIZE"
	KeyEmbeddingDimensions            = "EMBEDDING_DIMENSIONS"
	KeyCrawlBatchSize                 = "CRAWL_BATCH_SIZE"
	KeyCrawlMaxConcurrent             = "CRAWL_MAX_CONCURRENT"
	KeyMemoryThresholdPercent         = "MEMORY_THRESHOLD_PERCENT"
	KeyDispatcherCheckInterval        = "DISPATCHER_CHECK_INTERVAL"
	KeyCrawlWaitStrategy              = "CRAWL_WAIT_STRATEGY"
	KeyCrawlPageTimeout               = "CRAWL_PAGE_TIMEOUT"
	KeyCrawlDelayBeforeHTML           = "CRAWL_DELAY_BEFORE_HTML"
	KeyContextualEmbeddingBatchSize   = "CONTEXTUAL_EMBEDDING_BATCH_SIZE"
	KeyContextualEmbeddingsMaxWorkers = "CONTEXTUAL_EMBEDDINGS_MAX_WORKERS"
	KeyCodeSummaryMaxWorkers          = "CODE_SUMMARY_MAX_WORKERS"
	KeyMinCodeBlockLength             = "MIN_CODE_BLOCK_LENGTH"
	KeyMaxCodeBlockLength             = "MAX_CODE_BLOCK_LENGTH"
	KeyEnableProseFiltering           = "ENABLE_PROSE_FILTERING"
	KeyMaxProseRatio                  = "MAX_PROSE_RATIO"
	KeyMinCodeIndicators              = "MIN_CODE_INDICATORS"
	KeyEnableDiagramFiltering         = "ENABLE_DIAGRAM_FILTERING"
	KeyContextWindowSize              = "CONTEXT_WINDOW_SIZE"
	KeyDocumentStorageBatchSize       = "DOCUMENT_STORAGE_BATCH_SIZE"
	KeyDeleteBatchSize                = "DELETE_BATCH_SIZE"
	KeyConcurrentCrawlLimit           = "CONCURRENT_CRAWL_LIMIT"
	KeyRateLimitRequestsPerMinute     = "RATE_LIMIT_REQUESTS_PER_MINUTE"
	KeyRateLimitTokensPerMinute       = "RATE_LIMIT_TOKENS_PER_MINUTE"
	KeyRateLimitConcurrency           = "RATE_LIMIT_CONCURRENCY"
)

// defaults mirrors the named-default table from the source system: the
// value used whenever a key is absent from both the Store and the
// environment.
var defaults = map[string]string{
	KeyModelChoice:                    "gpt-4o-mini",
	KeyUseContextualEmbeddings:        "false",
	KeyUseHybridSearch:                "true",
	KeyUseReranking:                   "false",
	KeyUseAgenticRAG:                  "false",
	KeyEmbeddingBatchSize:             "100",
	KeyEmbeddingDimensions:            "1536",
	KeyCrawlBatchSize:                 "50",
	KeyCrawlMaxConcurrent:             "10",
	KeyMemoryThresholdPercent:         "80",
	KeyDispatcherCheckInterval:        "1",
	KeyCrawlWaitStrategy:              "networkidle",
	KeyCrawlPageTimeout:               "60",
	KeyCrawlDelayBeforeHTML:           "0.5",
	KeyContextualEmbeddingBatchSize:   "50",
	KeyContextualEmbeddingsMaxWorkers: "3",
	KeyCodeSummaryMaxWorkers:          "3",
	KeyMinCodeBlockLength:             "250",
	KeyMaxCodeBlockLength:             "5000",
	KeyEnableProseFiltering:           "true",
	KeyMaxProseRatio:                  "0.15",
	KeyMinCodeIndicators:              "3",
	KeyEnableDiagramFiltering:         "true",
	KeyContextWindowSize:              "1000",
	KeyDocumentStorageBatchSize:       "50",
	KeyDeleteBatchSize:                "50",
	KeyConcurrentCrawlLimit:           "3",
	KeyRateLimitRequestsPerMinute:     "3000",
	KeyRateLimitTokensPerMinute:       "200000",
	KeyRateLimitConcurrency:           "2",
}
