// Package watcher keeps an index current as files change on disk.
//
// A Source (FSNotifySource in production) turns file system notifications
// into Events. The Pipeline consumes them on a single goroutine:
//
//   - add and change events mark the path pending and restart the debounce
//     timer; when it fires every pending path is re-indexed exactly once
//   - unlink events are applied immediately
//
// Per-file failures are logged and never stop a batch. Stop drops whatever
// is still pending.
package watcher
