package config

import "time"

// LoaderConfig is the root configuration for a loader instance.
type LoaderConfig struct {
	Tushare        TushareConfig        `yaml:"tushare"`
	SW             SWConfig             `yaml:"sw"`
	Database       DBConfig             `yaml:"database"`
	TableStructure TableStructureConfig `yaml:"table_structure"`
	Writer         WriterConfig         `yaml:"writer"`
	Log            LogConfig            `yaml:"log"`
	Schedule       ScheduleConfig       `yaml:"schedule"`
	Health         HealthConfig         `yaml:"health"`
	Finance        FinanceConfig        `yaml:"finance"`
}

// TushareConfig holds vendor API settings.
type TushareConfig struct {
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`

	// RequestsPerWindow requests are allowed every Window.
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`

	// FailureBudget is the number of consecutive failed calls tolerated
	// before the client refuses further requests.
	FailureBudget int `yaml:"failure_budget"`
}

// SWConfig holds settings for the SW Research index web endpoint.
type SWConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxTries   int           `yaml:"max_tries"`
	RetrySleep time.Duration `yaml:"retry_sleep"`
	Workers    int           `yaml:"workers"`
}

// DBConfig holds the PostgreSQL connection.
type DBConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Name         string        `yaml:"name"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	SSLMode      string        `yaml:"ssl_mode"`
	MaxConns     int           `yaml:"max_conns"`
	MinConns     int           `yaml:"min_conns"`
	StoreRetries int           `yaml:"store_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// TableStructureConfig locates the table-definition snapshot.
type TableStructureConfig struct {
	Dir           string   `yaml:"dir"`
	StructureFile string   `yaml:"structure_file"`
	IndexFile     string   `yaml:"index_file"`
	CommentFile   string   `yaml:"comment_file"`
	Schemas       []string `yaml:"schemas"`   // schemas captured by pull-schema
	KeepDays      int      `yaml:"keep_days"` // archived snapshots older than this many days are removed
}

// WriterConfig holds bulk writer settings.
type WriterConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Dir      string `yaml:"dir"`
	Level    string `yaml:"level"`
	KeepDays int    `yaml:"keep_days"`
}

// ScheduleConfig holds daemon mode settings.
type ScheduleConfig struct {
	At         string `yaml:"at"` // HH:MM
	Timezone   string `yaml:"timezone"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// HealthConfig holds the daemon health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// FinanceConfig selects how financial statements are downloaded.
type FinanceConfig struct {
	// Mode is "period" (VIP endpoints, one call per report period) or
	// "code" (one call per listed stock, for accounts without VIP access).
	Mode          string `yaml:"mode"`
	RecentPeriods int    `yaml:"recent_periods"`
}
