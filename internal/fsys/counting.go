package fsys

import "sync"

// Op names a counted filesystem operation.
type Op string

const (
	OpStat     Op = "stat"
	OpReadDir  Op = "readdir"
	OpReadFile Op = "readfile"
	OpWrite    Op = "write"
)

// Counting wraps an FS and counts calls per operation and path.
type Counting struct {
	FS

	mu     sync.Mutex
	counts map[Op]map[string]int
}

// NewCounting wraps inner.
func NewCounting(inner FS) *Counting {
	return &Counting{FS: inner, counts: map[Op]map[string]int{}}
}

func (c *Counting) record(op Op, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byPath, ok := c.counts[op]
	if !ok {
		byPath = map[string]int{}
		c.counts[op] = byPath
	}
	byPath[path]++
}

func (c *Counting) Stat(path string) (FileInfo, error) {
	c.record(OpStat, path)
	return c.FS.Stat(path)
}

func (c *Counting) ReadDir(path string) ([]string, error) {
	c.record(OpReadDir, path)
	return c.FS.ReadDir(path)
}

func (c *Counting) ReadFile(path string) ([]byte, error) {
	c.record(OpReadFile, path)
	return c.FS.ReadFile(path)
}

func (c *Counting) WriteFile(path string, data []byte) error {
	c.record(OpWrite, path)
	return c.FS.WriteFile(path, data)
}

// Count returns how often op ran against path.
func (c *Counting) Count(op Op, path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[op][path]
}

// Total returns how often op ran against any path.
func (c *Counting) Total(op Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts[op] {
		total += n
	}
	return total
}

// Listings returns how often dir was listed.
func (c *Counting) Listings(dir string) int { return c.Count(OpReadDir, dir) }

// Reset zeroes every counter.
func (c *Counting) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = map[Op]map[string]int{}
}
