package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCaller means no strategy could attribute the call to a tenant.
	ErrUnknownCaller = errors.New("cannot identify user for this call")
	// ErrAssistantMappingMissing is the operator-facing configuration gap for
	// calls that only carry an assistant id.
	ErrAssistantMappingMissing = errors.New("assistant-to-user mapping is not configured")
)

// AssistantDirectory maps a voice assistant to the tenant user that owns it.
// No implementation ships; without one, assistant-only calls fail with
// ErrAssistantMappingMissing.
type AssistantDirectory interface {
	UserIDForAssistant(ctx context.Context, assistantID string) (string, error)
}

// resolveUserID tries, in order: an explicit userId argument, the call's
// metadata.businessOwnerId, then the assistant directory.
func (r *Router) resolveUserID(ctx context.Context, args Arguments, call *Call) (string, error) {
	if id := args.String("userId"); id != "" {
		return id, nil
	}
	if call == nil {
		return "", ErrUnknownCaller
	}
	if owner, ok := call.Metadata["businessOwnerId"].(string); ok && strings.TrimSpace(owner) != "" {
		return strings.TrimSpace(owner), nil
	}
	if call.AssistantID != "" {
		if r.directory == nil {
			return "", fmt.Errorf("%w: assistant %s has no owner; set metadata.businessOwnerId on the assistant or configure an assistant directory",
				ErrAssistantMappingMissing, call.AssistantID)
		}
		id, err := r.directory.UserIDForAssistant(ctx, call.AssistantID)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrAssistantMappingMissing, err)
		}
		if id != "" {
			return id, nil
		}
	}
	return "", ErrUnknownCaller
}
