package memory

import (
	"context"
	"sync"
)

// Enrolment opens matches to groups of students. A match without any group
// is open to every student.
type Enrolment struct {
	mu      sync.RWMutex
	groups  map[int64][]int64
	members map[int64]map[int64]struct{}
}

func NewEnrolment() *Enrolment {
	return &Enrolment{
		groups:  make(map[int64][]int64),
		members: make(map[int64]map[int64]struct{}),
	}
}

// RestrictToGroups replaces the groups a match is open to. No groups opens it again.
func (e *Enrolment) RestrictToGroups(_ context.Context, matchCod int64, grpCods ...int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(grpCods) == 0 {
		delete(e.groups, matchCod)
		return nil
	}
	e.groups[matchCod] = append([]int64(nil), grpCods...)
	return nil
}

// AddMember puts a student into a group.
func (e *Enrolment) AddMember(_ context.Context, grpCod, usrCod int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.members[grpCod]
	if !ok {
		set = make(map[int64]struct{})
		e.members[grpCod] = set
	}
	set[usrCod] = struct{}{}
	return nil
}

func (e *Enrolment) StudentIsEntitledToPlay(_ context.Context, matchCod, usrCod int64) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	groups, restricted := e.groups[matchCod]
	if !restricted {
		return true, nil
	}
	for _, g := range groups {
		if _, ok := e.members[g][usrCod]; ok {
			return true, nil
		}
	}
	return false, nil
}
