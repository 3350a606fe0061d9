package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // schedule.timezone must resolve on hosts without zoneinfo
)

// Validate checks that all required fields are set and values are valid.
func (c *LoaderConfig) Validate() error {
	if c.Tushare.Token == "" {
		return errors.New("tushare.token is required")
	}
	if c.Tushare.MaxRetries < 0 {
		return errors.New("tushare.max_retries must be >= 0")
	}
	if c.Tushare.RequestsPerWindow < 1 {
		return errors.New("tushare.requests_per_window must be >= 1")
	}
	if c.Tushare.FailureBudget < 1 {
		return errors.New("tushare.failure_budget must be >= 1")
	}

	if c.SW.MaxTries < 1 {
		return errors.New("sw.max_tries must be >= 1")
	}
	if c.SW.Workers < 1 {
		return errors.New("sw.workers must be >= 1")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if len(c.TableStructure.Schemas) == 0 {
		return errors.New("table_structure.schemas must not be empty")
	}
	if c.TableStructure.KeepDays < 0 {
		return errors.New("table_structure.keep_days must be >= 0")
	}

	if c.Writer.BatchSize < 1 {
		return errors.New("writer.batch_size must be >= 1")
	}

	if _, err := time.Parse("15:04", c.Schedule.At); err != nil {
		return fmt.Errorf("schedule.at must be HH:MM, got %q", c.Schedule.At)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	switch c.Finance.Mode {
	case "period", "code":
	default:
		return fmt.Errorf("finance.mode must be period or code, got %q", c.Finance.Mode)
	}
	if c.Finance.RecentPeriods < 1 {
		return errors.New("finance.recent_periods must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	if db.StoreRetries < 1 {
		return fmt.Errorf("%s.store_retries must be >= 1", prefix)
	}
	return nil
}
