package indexer

import "github.com/dshills/codegraph-mcp/internal/watcher"

// notify injects an event into the running pipeline
func (x *Index) notify(ev watcher.Event) bool {
	x.mu.Lock()
	session := x.watch
	x.mu.Unlock()
	if session == nil {
		return false
	}
	return session.pipeline.Notify(ev)
}
