package resolver

import (
	"fmt"
	"strings"
)

// ConfigValidationError reports a backend payload that violates the
// required-field invariant. Such a snapshot is never cached, not even
// partially; the caller falls back to a generic configuration.
type ConfigValidationError struct {
	TenantKey string
	Problems  []string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("config for %q failed validation: %s",
		e.TenantKey, strings.Join(e.Problems, "; "))
}
