package ratelimit

import "github.com/MindFlowInteractive/quest-service-sub006/internal/auth"

// UserKeyPrefix prefixes keys of authenticated callers.
const UserKeyPrefix = "user-"

// IdentityKey returns the rate limit key for a caller: "user-<subject>" for
// authenticated identities and the client IP otherwise.
func IdentityKey(id auth.Identity, clientIP string) string {
	if sub, ok := auth.SubjectID(id); ok {
		return UserKeyPrefix + sub
	}
	return clientIP
}
