package observability

import (
	"errors"
	"fmt"
)

// JoinErrors drops nil entries, reports the remainder to logger and returns
// them joined under operation. Returns nil when nothing failed.
func JoinErrors(logger Logger, operation string, errs ...error) error {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if logger == nil {
		logger = Log()
	}
	for _, err := range filtered {
		Safe(logger).Error(operation+" failed", F("error", err.Error()))
	}
	return fmt.Errorf("%s: %w", operation, errors.Join(filtered...))
}
