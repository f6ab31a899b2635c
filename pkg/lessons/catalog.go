// Package lessons serves lesson snapshots to the learner aggregate.
//
// A Catalog is an in-memory learner.LessonLookup. It is usually populated from a
// YAML document read from a gocloud blob bucket, so the same code loads the
// catalog from local files, memory or cloud storage depending on the URL.
package lessons

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/plaenen/learnerstore/pkg/learner"
)

var _ learner.LessonLookup = (*Catalog)(nil)

// Catalog is a concurrency-safe in-memory set of lessons.
type Catalog struct {
	mu      sync.RWMutex
	lessons map[uuid.UUID]learner.Lesson
}

// NewCatalog creates a catalog holding lessons.
func NewCatalog(lessons ...learner.Lesson) *Catalog {
	c := &Catalog{lessons: make(map[uuid.UUID]learner.Lesson, len(lessons))}
	for _, l := range lessons {
		c.lessons[l.ID] = l.Clone()
	}
	return c
}

// FindLesson implements learner.LessonLookup.
func (c *Catalog) FindLesson(ctx context.Context, id uuid.UUID) (learner.Lesson, error) {
	if err := ctx.Err(); err != nil {
		return learner.Lesson{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	lesson, ok := c.lessons[id]
	if !ok {
		return learner.Lesson{}, &learner.LessonNotFoundError{LessonID: id}
	}
	return lesson.Clone(), nil
}

// Put adds or replaces a lesson.
func (c *Catalog) Put(lesson learner.Lesson) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lessons[lesson.ID] = lesson.Clone()
}

// Replace swaps the whole content of the catalog.
func (c *Catalog) Replace(lessons []learner.Lesson) {
	next := make(map[uuid.UUID]learner.Lesson, len(lessons))
	for _, l := range lessons {
		next[l.ID] = l.Clone()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lessons = next
}

// Len returns the number of lessons.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lessons)
}

// Lessons returns every lesson ordered by name, then id.
func (c *Catalog) Lessons() []learner.Lesson {
	c.mu.RLock()
	out := make([]learner.Lesson, 0, len(c.lessons))
	for _, l := range c.lessons {
		out = append(out, l.Clone())
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b learner.Lesson) int {
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}
