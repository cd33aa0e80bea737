package redis

const (
	// DefaultKeyPrefix namespaces the directory cache keys.
	DefaultKeyPrefix = "mlvd:relays:"

	keyBody    = "body"
	keyETag    = "etag"
	keyModTime = "mtime"
)

// BodyKey returns the key holding the serialized directory.
func BodyKey(prefix string) string {
	return prefix + keyBody
}

// ETagKey returns the key holding the validator.
func ETagKey(prefix string) string {
	return prefix + keyETag
}

// ModTimeKey returns the key holding the modification time in unix nanoseconds.
func ModTimeKey(prefix string) string {
	return prefix + keyModTime
}
