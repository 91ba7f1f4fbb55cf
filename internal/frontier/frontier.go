// Package frontier runs the breadth-first crawl of a single session.
package frontier

import "sync"

// Frontier is the per-run FIFO of URLs still to visit plus the set of URLs
// already enqueued or visited. It is safe for concurrent use.
type Frontier struct {
	mu    sync.Mutex
	queue []string
	seen  map[string]struct{}
}

// New seeds a frontier with a single URL.
func New(seed string) *Frontier {
	return &Frontier{
		queue: []string{seed},
		seen:  map[string]struct{}{seed: {}},
	}
}

// Next removes and returns up to n URLs from the front of the queue.
func (f *Frontier) Next(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > len(f.queue) {
		n = len(f.queue)
	}
	if n <= 0 {
		return nil
	}
	batch := make([]string, n)
	copy(batch, f.queue[:n])
	f.queue = f.queue[n:]
	return batch
}

// Push appends every link not yet seen, in order, and reports how many were added.
func (f *Frontier) Push(links []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	added := 0
	for _, link := range links {
		if _, ok := f.seen[link]; ok {
			continue
		}
		f.seen[link] = struct{}{}
		f.queue = append(f.queue, link)
		added++
	}
	return added
}

// Len reports the number of queued URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Seen reports whether url was ever enqueued.
func (f *Frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[url]
	return ok
}
