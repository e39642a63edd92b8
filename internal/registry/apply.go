package registry

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/fcm-courier/fcm"
)

// unrecoverableReasons are the provider failure reasons that mean a
// token will never deliver again and should leave the registry.
var unrecoverableReasons = map[string]struct{}{
	fcm.ReasonNotRegistered:       {},
	fcm.ReasonInvalidRegistration: {},
	fcm.ReasonMissingRegistration: {},
}

// Unrecoverable reports whether a failure reason retires its token.
func Unrecoverable(reason string) bool {
	_, ok := unrecoverableReasons[reason]
	return ok
}

// ApplyResult counts the store updates one report produced.
type ApplyResult struct {
	Replaced  int
	Removed   int
	Delivered int
}

// Apply folds a reconciliation report into the store: canonical
// rotations become Replace, unrecoverable failures become Remove, and
// successes become MarkDelivered against the token's newest id.
// Transient failure reasons leave the registry untouched.
func Apply(ctx context.Context, store Store, report *fcm.Report) (ApplyResult, error) {
	var result ApplyResult

	if store == nil {
		return result, fmt.Errorf("store is required")
	}
	if report.IsEmpty() {
		return result, nil
	}

	for oldID, newID := range report.Canonical {
		if err := store.Replace(ctx, oldID, newID); err != nil {
			return result, fmt.Errorf("replace token: %w", err)
		}
		result.Replaced++
	}

	for _, reason := range report.Errors.Reasons() {
		if !Unrecoverable(reason) {
			continue
		}
		for _, id := range report.Errors.IDs(reason) {
			if err := store.Remove(ctx, id); err != nil {
				return result, fmt.Errorf("remove token: %w", err)
			}
			result.Removed++
		}
	}

	for id, messageID := range report.Success {
		target := id
		if newID, ok := report.Canonical[id]; ok {
			target = newID
		}
		if err := store.MarkDelivered(ctx, target, messageID); err != nil {
			return result, fmt.Errorf("mark delivered: %w", err)
		}
		result.Delivered++
	}

	return result, nil
}
