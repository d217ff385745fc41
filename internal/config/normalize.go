package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSeparator()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OriginalsDir) == "" {
		c.Paths.OriginalsDir = defaultOriginalsDir
	}
	if c.Paths.OriginalsDir, err = expandPath(c.Paths.OriginalsDir); err != nil {
		return fmt.Errorf("paths.originals_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSeparator() {
	c.Separator.Binary = strings.TrimSpace(c.Separator.Binary)
	if c.Separator.Binary == "" {
		c.Separator.Binary = defaultSeparatorBinary
	}
	c.Separator.MixBinary = strings.TrimSpace(c.Separator.MixBinary)
	if c.Separator.MixBinary == "" {
		c.Separator.MixBinary = defaultMixBinary
	}
	c.Separator.Engine = strings.ToLower(strings.TrimSpace(c.Separator.Engine))
	if c.Separator.Engine == "" {
		c.Separator.Engine = defaultSeparatorEngine
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.DispatchIntervalSeconds <= 0 {
		c.Workflow.DispatchIntervalSeconds = defaultDispatchIntervalSeconds
	}
	if c.Workflow.SweepIntervalSeconds <= 0 {
		c.Workflow.SweepIntervalSeconds = defaultSweepIntervalSeconds
	}
	if c.Workflow.OrphanGraceMinutes <= 0 {
		c.Workflow.OrphanGraceMinutes = defaultOrphanGraceMinutes
	}
	if c.Workflow.RetentionDays <= 0 {
		c.Workflow.RetentionDays = defaultRetentionDays
	}
	if c.Workflow.ErrorRetryIntervalSeconds <= 0 {
		c.Workflow.ErrorRetryIntervalSeconds = defaultErrorRetryIntervalSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
