// Package content converts between native typed values and content envelopes.
//
// An [Envelope] is the `{data, content-type, filename}` wrapper stored with a
// document. Encode functions build envelopes carrying a transient payload;
// the store drains the payload into the blob store when the envelope is
// persisted. Decode functions read a stored (or still-pending) envelope back
// into its native value, failing with [ErrTypeMismatch] when the envelope was
// produced by a different codec.
package content
