package memory

import (
	"context"
	"sync"

	"trivia-service/internal/domain"
)

// GroupDirectory is an in-memory implementation of app.GroupDirectory.
type GroupDirectory struct {
	mu     sync.RWMutex
	groups map[string]domain.TriviaGroup
}

func NewGroupDirectory(groups ...domain.TriviaGroup) *GroupDirectory {
	d := &GroupDirectory{groups: make(map[string]domain.TriviaGroup, len(groups))}
	for _, g := range groups {
		d.groups[g.ID] = g
	}
	return d
}

func (d *GroupDirectory) Put(group domain.TriviaGroup) {
	d.mu.Lock()
	d.groups[group.ID] = group
	d.mu.Unlock()
}

func (d *GroupDirectory) GetGroup(_ context.Context, groupID string) (domain.TriviaGroup, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	group, ok := d.groups[groupID]
	if !ok {
		return domain.TriviaGroup{}, domain.ErrGroupNotFound
	}
	return group, nil
}
