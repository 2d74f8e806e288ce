package credentials

// Key names a credential value.
type Key string

const (
	// Durable keys
	KeyAccessToken  Key = "access_token"
	KeyRefreshToken Key = "refresh_token"
	KeyExpiresAt    Key = "expires_at" // Unix milliseconds
	KeyAccount      Key = "account"

	// Ephemeral keys, always scoped to one authorization flow via FlowKey
	KeyPKCEVerifier Key = "pkce_verifier"
)

// DurableKeys are erased together when authorization is lost.
var DurableKeys = []Key{KeyAccessToken, KeyRefreshToken, KeyExpiresAt, KeyAccount}

// Store is a key-value holder for credentials.
type Store interface {
	// Get returns the value and true, or "" and false when absent.
	Get(key Key) (string, bool)

	// Set stores a value, replacing any previous one.
	Set(key Key, value string) error

	// Remove deletes a value. Removing an absent key is not an error.
	Remove(key Key) error
}

// FlowKey scopes a key to a single authorization flow, identified by its
// OAuth state parameter.
func FlowKey(key Key, state string) Key {
	return key + ":" + Key(state)
}
