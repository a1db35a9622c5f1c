// Package errors provides the structured error taxonomy shared by the
// symbol index, the LSP client, and the VCS probe. Every failure that
// crosses a package boundary in this repository is either nil or an
// *IndexError — never a bare string error — so callers can branch on
// Kind without parsing messages, and MCP tool adapters can serialize
// (kind, message, details) without leaking stack traces.
package errors

// Kind classifies an error for programmatic handling. The set is closed
// so callers can switch on it exhaustively.
type Kind string

const (
	// KindNotARepository: the VCS probe found no repository at the
	// workspace root; incremental update must be skipped.
	KindNotARepository Kind = "NOT_A_REPOSITORY"

	// KindNoPreviousHash: the first incremental update has no prior
	// baseline commit hash recorded in stats; the caller must full-index.
	KindNoPreviousHash Kind = "NO_PREVIOUS_HASH"

	// KindInvalidHash: a supplied commit hash is shorter than 7
	// characters or does not resolve in the repository.
	KindInvalidHash Kind = "INVALID_HASH"

	// KindCommandFailed: a child process exited non-zero.
	KindCommandFailed Kind = "COMMAND_FAILED"

	// KindTimeout: a child-process call exceeded its deadline.
	KindTimeout Kind = "TIMEOUT"

	// KindProviderFailure: the symbol provider raised while extracting
	// symbols for a document.
	KindProviderFailure Kind = "PROVIDER_FAILURE"

	// KindCacheIO: a cache read or write failed. Read failures degrade
	// to a cache miss; write failures propagate to the caller.
	KindCacheIO Kind = "CACHE_IO"

	// KindSchemaUpdated: the persistent cache was wiped because the
	// compiled-in schema version advanced past the stored version. Not
	// an error in the usual sense, but flagged so the caller knows a
	// reindex is required.
	KindSchemaUpdated Kind = "SCHEMA_UPDATED"

	// KindNotReady: an LSP request was issued before the client
	// finished its initialize/initialized handshake.
	KindNotReady Kind = "NOT_READY"

	// KindInternal: an unclassified internal failure.
	KindInternal Kind = "INTERNAL"
)

// retryableKinds are kinds for which the caller may reasonably retry the
// same operation without changing inputs.
var retryableKinds = map[Kind]bool{
	KindTimeout: true,
}
