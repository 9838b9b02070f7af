// Package fs provides filesystem abstractions for testability and fault injection.
//
//   - [LocalFS]: Production implementation using the standard os package
//   - [FaultyFS]: Test utility injecting write/sync/close failures
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// The interfaces intentionally carry no context.Context: local filesystem
// calls are not interruptible at the syscall level.
package fs
