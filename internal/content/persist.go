package content

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// persister owns the document file. A single goroutine performs writes;
// a snapshot scheduled while another is pending replaces it, so bursts of
// mutations collapse into one write of the newest state.
type persister struct {
	path string

	mu        sync.Mutex
	pending   []byte
	scheduled uint64 // snapshots handed in so far
	written   uint64 // snapshots durable (or superseded) so far
	lastSum   [blake2b.Size256]byte
	haveSum   bool
	lastErr   error
	progress  chan struct{} // closed and replaced after every write cycle
	closed    bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newPersister(path string) *persister {
	p := &persister{
		path:     path,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// remember records data as already on disk so an identical snapshot is not
// rewritten.
func (p *persister) remember(data []byte) {
	sum := blake2b.Sum256(data)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSum = sum
	p.haveSum = true
}

// schedule hands a snapshot to the writer without blocking.
func (p *persister) schedule(data []byte) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		slog.Warn("store snapshot scheduled after close; dropped", "path", p.path)
		return
	}
	p.pending = data
	p.scheduled++
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// flush waits until every snapshot scheduled before the call has been
// handled and returns the error of the most recent write, if any.
func (p *persister) flush(ctx context.Context) error {
	p.mu.Lock()
	target := p.scheduled
	p.mu.Unlock()

	for {
		p.mu.Lock()
		if p.written >= target {
			err := p.lastErr
			p.mu.Unlock()
			return err
		}
		ch := p.progress
		p.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// close writes whatever is still pending and stops the writer goroutine.
func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.quit)
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.writePending()
		case <-p.quit:
			p.writePending()
			return
		}
	}
}

func (p *persister) writePending() {
	p.mu.Lock()
	data := p.pending
	gen := p.scheduled
	lastSum, haveSum := p.lastSum, p.haveSum
	p.pending = nil
	p.mu.Unlock()

	// Only this goroutine writes lastSum after startup, so the copy taken
	// above is still current while hashing outside the lock.
	var sum [blake2b.Size256]byte
	skip := data == nil
	if !skip {
		sum = blake2b.Sum256(data)
		skip = haveSum && sum == lastSum
	}

	var err error
	if !skip {
		err = writeFileAtomic(p.path, data)
		if err != nil {
			slog.Error("failed to persist store", "path", p.path, "error", err)
		}
	}

	p.mu.Lock()
	if !skip {
		p.lastErr = err
		if err == nil {
			p.lastSum = sum
			p.haveSum = true
		}
	}
	if gen > p.written {
		p.written = gen
	}
	close(p.progress)
	p.progress = make(chan struct{})
	p.mu.Unlock()
}

// writeFileAtomic writes data to a temporary file in the target directory,
// syncs it and renames it over path, so readers see either the previous
// document or the new one.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replacing store document: %w", err)
	}
	return nil
}
