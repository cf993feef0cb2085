package storage

import (
	"context"
	"io"
	"sync"
)

// sliceIterator serves a pre-collected snapshot of paths. Used by backends
// whose native listing is a bounded local or metadata enumeration (file,
// mem, vault, ipfs, cmis); cloud backends stream native pagination instead.
// Non-restartable, abandon-safe (no resources held).
type sliceIterator struct {
	items []string
	pos   int
}

// newSliceIterator wraps a snapshot of paths in an ObjectIterator.
func newSliceIterator(items []string) *sliceIterator {
	return &sliceIterator{items: items}
}

func (it *sliceIterator) Next(_ context.Context) (string, error) {
	if it.pos >= len(it.items) {
		return "", io.EOF
	}
	item := it.items[it.pos]
	it.pos++
	return item, nil
}

func (it *sliceIterator) Close() error {
	it.pos = len(it.items)
	return nil
}

// channelIterator drains a producer goroutine's channel and cancels the
// producer when abandoned, so an early Close never leaks the underlying
// listing connection.
type channelIterator struct {
	ch     <-chan listEntry
	cancel context.CancelFunc
	once   sync.Once
}

type listEntry struct {
	path string
	err  error
}

func newChannelIterator(ch <-chan listEntry, cancel context.CancelFunc) *channelIterator {
	return &channelIterator{ch: ch, cancel: cancel}
}

func (it *channelIterator) Next(ctx context.Context) (string, error) {
	select {
	case entry, ok := <-it.ch:
		if !ok {
			return "", io.EOF
		}
		if entry.err != nil {
			return "", entry.err
		}
		return entry.path, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (it *channelIterator) Close() error {
	it.once.Do(it.cancel)
	return nil
}
