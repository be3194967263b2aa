package scope

import (
	"fmt"
	"strings"
)

// ConfigError reports invalid scope configuration: malformed identifiers,
// conflicting filter axes, or a table declared in more than one rule category.
// It is always fatal and always raised before any connection is opened.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// NoMatchError reports that the configured filters eliminated every database.
// An empty database set almost always means a misconfigured include/exclude
// list, so it is fatal rather than a silent no-op.
type NoMatchError struct {
	Discovered []string
	Include    []string
	Exclude    []string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf(
		"no databases match the replication filter (discovered: [%s], include: [%s], exclude: [%s])",
		strings.Join(e.Discovered, ", "),
		strings.Join(e.Include, ", "),
		strings.Join(e.Exclude, ", "),
	)
}
