package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	actorKey        contextKey = "actor"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
)

func setActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorKey, name)
}

// GetActor returns the authenticated API key's name, used as the audit
// actor for resolve and delete operations.
func GetActor(r *http.Request) (string, bool) {
	name, ok := r.Context().Value(actorKey).(string)
	return name, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}

// ExportedSetActor sets the actor in a context (for testing).
func ExportedSetActor(ctx context.Context, name string) context.Context {
	return setActor(ctx, name)
}
