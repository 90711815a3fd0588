package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateCleanup(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.TaskIntervalMax < c.Workflow.TaskIntervalMin {
		return fmt.Errorf("workflow.task_interval_max (%d) must be >= workflow.task_interval_min (%d)",
			c.Workflow.TaskIntervalMax, c.Workflow.TaskIntervalMin)
	}
	switch c.Workflow.DedupPolicy {
	case DedupPolicySuperset, DedupPolicyExact:
	default:
		return fmt.Errorf("workflow.dedup_policy must be %q or %q, got %q",
			DedupPolicySuperset, DedupPolicyExact, c.Workflow.DedupPolicy)
	}
	return nil
}

func (c *Config) validateCleanup() error {
	if c.Cleanup.RetentionDays < 1 {
		return errors.New("cleanup.retention_days must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}
	return nil
}
