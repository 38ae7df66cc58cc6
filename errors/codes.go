package errors

// Kind classifies a transfer failure. Kinds are string-based so they read
// well in logs and serialize naturally.
type Kind string

const (
	// KindPermission indicates the bucket ACL probe (or any call) was denied.
	// Fatal: the transfer is never attempted.
	KindPermission Kind = "PERMISSION"

	// KindStorageIO indicates the local source could not be read.
	KindStorageIO Kind = "STORAGE_IO"

	// KindTransientNetwork indicates a connectivity or throttling failure that
	// may succeed when retried.
	KindTransientNetwork Kind = "TRANSIENT_NETWORK"

	// KindIntegrityMismatch indicates the store rejected a part checksum.
	KindIntegrityMismatch Kind = "INTEGRITY_MISMATCH"

	// KindSessionState indicates the part registry was incomplete or
	// inconsistent, or the session is unknown to the store.
	KindSessionState Kind = "SESSION_STATE"

	// KindPartialCleanup indicates the object was copied but the source could
	// not be deleted. A duplicate exists at both locations.
	KindPartialCleanup Kind = "PARTIAL_CLEANUP"

	// KindInvalidInput indicates the request or configuration is invalid.
	KindInvalidInput Kind = "INVALID_INPUT"

	// KindCanceled indicates the caller cancelled the transfer or it timed out.
	KindCanceled Kind = "CANCELED"

	// KindStore indicates a non-retryable rejection from the store.
	KindStore Kind = "STORE"

	// KindInternal indicates a bug.
	KindInternal Kind = "INTERNAL"
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Retryable reports whether failures of this kind are worth retrying locally.
func (k Kind) Retryable() bool {
	return k == KindTransientNetwork || k == KindIntegrityMismatch
}
