// Package comments holds the FIFO pool of candidate comments for a run.
package comments

import (
	"bufio"
	"os"
	"strings"
)

// Pool is an ordered queue of comments consumed from the front. It is never
// written back to disk; an exhausted pool stays exhausted until the source
// file is edited and a new run starts.
type Pool struct {
	items []string
}

// NewPool returns a pool over items, dropping blank entries.
func NewPool(items []string) *Pool {
	p := &Pool{}
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			p.items = append(p.items, s)
		}
	}
	return p
}

// Load reads a newline-delimited comments file, one comment per line.
func Load(path string) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewPool(lines), nil
}

// Next pops comments from the front until it finds one for which used
// returns false. Every comment it looks at is removed, used or not. It
// returns false when the pool runs dry.
func (p *Pool) Next(used func(string) bool) (string, bool) {
	for len(p.items) > 0 {
		c := p.items[0]
		p.items = p.items[1:]
		if used == nil || !used(c) {
			return c, true
		}
	}
	return "", false
}

// Len returns the number of comments still queued, used or not.
func (p *Pool) Len() int { return len(p.items) }

// Exhausted reports whether the pool is empty.
func (p *Pool) Exhausted() bool { return len(p.items) == 0 }

// Remaining returns the queued comments that used does not reject, without
// consuming them.
func (p *Pool) Remaining(used func(string) bool) []string {
	var out []string
	for _, c := range p.items {
		if used == nil || !used(c) {
			out = append(out, c)
		}
	}
	return out
}

// HasUnused reports whether Next would return a comment, without consuming
// anything.
func (p *Pool) HasUnused(used func(string) bool) bool {
	for _, c := range p.items {
		if used == nil || !used(c) {
			return true
		}
	}
	return false
}
