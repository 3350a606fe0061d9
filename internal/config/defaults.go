package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTushareURL        = "http://api.tushare.pro"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 5
	DefaultRetryBackoff      = 2 * time.Second
	DefaultMaxBackoff        = 60 * time.Second
	DefaultRequestsPerWindow = 300
	DefaultWindow            = 60 * time.Second
	DefaultFailureBudget     = 500

	DefaultSWURL        = "https://www.swsresearch.com/institute-sw/api/index_publish/trend/"
	DefaultSWTimeout    = 5 * time.Second
	DefaultSWMaxTries   = 20
	DefaultSWRetrySleep = 30 * time.Second
	DefaultSWWorkers    = 10

	DefaultDBPort       = 5432
	DefaultDBSSLMode    = "prefer"
	DefaultMaxConns     = 10
	DefaultMinConns     = 2
	DefaultStoreRetries = 5
	DefaultRetryDelay   = time.Second

	DefaultTableStructureDir = "table_structure"
	DefaultStructureFile     = "table_structure.csv"
	DefaultIndexFile         = "table_index.csv"
	DefaultCommentFile       = "table_comment.csv"
	DefaultStructureKeepDays = 7

	DefaultBatchSize = 1000

	DefaultLogDir      = "log"
	DefaultLogLevel    = "info"
	DefaultLogKeepDays = 7

	DefaultScheduleAt = "18:00"
	DefaultTimezone   = "Asia/Shanghai"

	DefaultHealthPort = 8080

	DefaultFinanceMode   = "period"
	DefaultRecentPeriods = 5
)

// DefaultSchemas are the schemas the loader writes to.
var DefaultSchemas = []string{"stk_data", "fut_data"}

func (c *LoaderConfig) applyDefaults() {
	// Tushare defaults
	if c.Tushare.URL == "" {
		c.Tushare.URL = DefaultTushareURL
	}
	if c.Tushare.Timeout == 0 {
		c.Tushare.Timeout = DefaultAPITimeout
	}
	if c.Tushare.MaxRetries == 0 {
		c.Tushare.MaxRetries = DefaultMaxRetries
	}
	if c.Tushare.RetryBackoff == 0 {
		c.Tushare.RetryBackoff = DefaultRetryBackoff
	}
	if c.Tushare.MaxBackoff == 0 {
		c.Tushare.MaxBackoff = DefaultMaxBackoff
	}
	if c.Tushare.RequestsPerWindow == 0 {
		c.Tushare.RequestsPerWindow = DefaultRequestsPerWindow
	}
	if c.Tushare.Window == 0 {
		c.Tushare.Window = DefaultWindow
	}
	if c.Tushare.FailureBudget == 0 {
		c.Tushare.FailureBudget = DefaultFailureBudget
	}

	// SW defaults
	if c.SW.URL == "" {
		c.SW.URL = DefaultSWURL
	}
	if c.SW.Timeout == 0 {
		c.SW.Timeout = DefaultSWTimeout
	}
	if c.SW.MaxTries == 0 {
		c.SW.MaxTries = DefaultSWMaxTries
	}
	if c.SW.RetrySleep == 0 {
		c.SW.RetrySleep = DefaultSWRetrySleep
	}
	if c.SW.Workers == 0 {
		c.SW.Workers = DefaultSWWorkers
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// Table structure defaults
	ts := &c.TableStructure
	if ts.Dir == "" {
		ts.Dir = DefaultTableStructureDir
	}
	if ts.StructureFile == "" {
		ts.StructureFile = DefaultStructureFile
	}
	if ts.IndexFile == "" {
		ts.IndexFile = DefaultIndexFile
	}
	if ts.CommentFile == "" {
		ts.CommentFile = DefaultCommentFile
	}
	if len(ts.Schemas) == 0 {
		ts.Schemas = append([]string(nil), DefaultSchemas...)
	}
	if ts.KeepDays == 0 {
		ts.KeepDays = DefaultStructureKeepDays
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}

	// Log defaults
	if c.Log.Dir == "" {
		c.Log.Dir = DefaultLogDir
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.KeepDays == 0 {
		c.Log.KeepDays = DefaultLogKeepDays
	}

	// Schedule defaults
	if c.Schedule.At == "" {
		c.Schedule.At = DefaultScheduleAt
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = DefaultTimezone
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}

	// Finance defaults
	if c.Finance.Mode == "" {
		c.Finance.Mode = DefaultFinanceMode
	}
	if c.Finance.RecentPeriods == 0 {
		c.Finance.RecentPeriods = DefaultRecentPeriods
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.StoreRetries == 0 {
		db.StoreRetries = DefaultStoreRetries
	}
	if db.RetryDelay == 0 {
		db.RetryDelay = DefaultRetryDelay
	}
}
