// Package token provides redundant persistence for the session credential.
package token

import "strings"

// credentialKeyPrefix namespaces every stored credential. The backend scope
// identifier is embedded after the prefix so stale credentials from another
// environment can be recognized and evicted.
const credentialKeyPrefix = "tw-auth-"

// CredentialKey returns the storage key for the given backend scope.
func CredentialKey(scope string) string {
	return credentialKeyPrefix + scope
}

// IsCredentialKey reports whether key matches the credential-key pattern.
func IsCredentialKey(key string) bool {
	return strings.HasPrefix(key, credentialKeyPrefix)
}

// keyScope extracts the scope identifier embedded in a credential key.
func keyScope(key string) string {
	return strings.TrimPrefix(key, credentialKeyPrefix)
}

// Backend is a single key/value storage backend. Implementations may fail
// (quota, disabled storage, closed database); the Store treats any backend
// error as a degraded cache, never as a fatal condition.
type Backend interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
	Keys() ([]string, error)
}
