// Package controller tracks dirty and priority files and assigns them to
// workers by stable hashing, producing the batch-check Requests the
// master dispatches.
package controller

import (
	"hash/fnv"
	"sort"

	"github.com/google/uuid"
)

// Request records one in-flight batch check: its GUID, per-worker
// assignment, and completion counters.
type Request struct {
	GUID        string
	Assignment  map[int][]string // worker index -> paths
	Completed   int
	Total       int
	ClientReqID interface{}
}

// Controller holds the changed/priority path sets and computes
// deterministic worker assignments.
type Controller struct {
	workerCount   int
	changedPaths  map[string]bool
	priorityPaths map[string]bool
}

// New returns a Controller that assigns non-priority paths across
// workerCount code workers.
func New(workerCount int) *Controller {
	return &Controller{
		workerCount:   workerCount,
		changedPaths:  map[string]bool{},
		priorityPaths: map[string]bool{},
	}
}

// PushChange marks path dirty, to be included in the next MakeRequest.
func (c *Controller) PushChange(path string) {
	if isUntitled(path) {
		return
	}
	c.changedPaths[path] = true
}

// UpdatePriority adds opened paths to, and removes closed paths from, the
// priority set.
func (c *Controller) UpdatePriority(opened, closed []string) {
	for _, p := range opened {
		if !isUntitled(p) {
			c.priorityPaths[p] = true
		}
	}
	for _, p := range closed {
		delete(c.priorityPaths, p)
	}
}

func isUntitled(path string) bool {
	return len(path) >= len("untitled:") && path[:len("untitled:")] == "untitled:"
}

// MakeRequest atomically drains changed_paths, assigns every drained path
// to a worker (priority paths first, each group in lexicographic order
// for determinism), and returns the new Request. Returns nil if there was
// nothing to check.
func (c *Controller) MakeRequest(lastClientReqID interface{}) *Request {
	if len(c.changedPaths) == 0 {
		return nil
	}

	var priority, rest []string
	for p := range c.changedPaths {
		if c.priorityPaths[p] {
			priority = append(priority, p)
		} else {
			rest = append(rest, p)
		}
	}
	sort.Strings(priority)
	sort.Strings(rest)
	ordered := append(priority, rest...)

	c.changedPaths = map[string]bool{}

	assignment := map[int][]string{}
	for _, p := range ordered {
		w := c.workerFor(p)
		assignment[w] = append(assignment[w], p)
	}

	total := 0
	for _, paths := range assignment {
		total += len(paths)
	}

	return &Request{
		GUID:        uuid.NewString(),
		Assignment:  assignment,
		Total:       total,
		ClientReqID: lastClientReqID,
	}
}

// workerFor deterministically assigns a path to one of workerCount
// workers by stable (FNV-1a) hash, independent of map iteration order or
// process restarts.
func (c *Controller) workerFor(path string) int {
	if c.workerCount <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return int(h.Sum32() % uint32(c.workerCount))
}
