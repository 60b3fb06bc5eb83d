package watcher

import (
	"sync"
	"time"

	"github.com/core-tools/hsu-watcher/pkg/errors"
)

// serviceSet is the monitoring set. Every read and write goes through the
// mutex, which is never held across a status query; callers only ever see
// copies of the entries.
type serviceSet struct {
	mutex   sync.Mutex
	entries []*WatchedService
	index   map[string]*WatchedService
}

// pollTarget pairs a live entry with the copy taken for querying.
type pollTarget struct {
	entry   *WatchedService
	service WatchedService
}

func newServiceSet() *serviceSet {
	return &serviceSet{
		index: make(map[string]*WatchedService),
	}
}

func (s *serviceSet) add(svc WatchedService) error {
	if err := ValidateServiceIdentity(svc); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := serviceKey(svc.ID)
	if _, exists := s.index[key]; exists {
		return errors.NewDuplicateServiceError("service is already monitored").WithContext("service_id", svc.ID)
	}

	entry := svc
	entry.resetRuntimeState()
	s.entries = append(s.entries, &entry)
	s.index[key] = &entry
	return nil
}

func (s *serviceSet) remove(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := serviceKey(id)
	entry, exists := s.index[key]
	if !exists {
		return errors.NewNotFoundError("service is not monitored", nil).WithContext("service_id", id)
	}

	delete(s.index, key)
	for i, candidate := range s.entries {
		if candidate == entry {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	return nil
}

// replace swaps the whole set. Nothing changes unless every service is valid
// and unique.
func (s *serviceSet) replace(services []WatchedService) error {
	entries := make([]*WatchedService, 0, len(services))
	index := make(map[string]*WatchedService, len(services))
	for _, svc := range services {
		if err := ValidateServiceIdentity(svc); err != nil {
			return err
		}
		key := serviceKey(svc.ID)
		if _, exists := index[key]; exists {
			return errors.NewDuplicateServiceError("duplicate service in configuration").WithContext("service_id", svc.ID)
		}
		entry := svc
		entry.resetRuntimeState()
		entries = append(entries, &entry)
		index[key] = &entry
	}

	s.mutex.Lock()
	s.entries = entries
	s.index = index
	s.mutex.Unlock()
	return nil
}

func (s *serviceSet) get(id string) (WatchedService, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.index[serviceKey(id)]
	if !exists {
		return WatchedService{}, false
	}
	return *entry, true
}

func (s *serviceSet) len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

func (s *serviceSet) snapshot() []WatchedService {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	services := make([]WatchedService, 0, len(s.entries))
	for _, entry := range s.entries {
		services = append(services, *entry)
	}
	return services
}

func (s *serviceSet) pollTargets() []pollTarget {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	targets := make([]pollTarget, 0, len(s.entries))
	for _, entry := range s.entries {
		targets = append(targets, pollTarget{entry: entry, service: *entry})
	}
	return targets
}

// recordStatus stores a successful query result. It returns the transition
// to emit, if any, and false when the entry left the set while its query was
// in flight.
func (s *serviceSet) recordStatus(entry *WatchedService, status Status, at time.Time) (*StatusTransition, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.contains(entry) {
		return nil, false
	}

	var transition *StatusTransition
	previous := entry.LastKnownStatus
	if previous != status && previous != StatusUnknown {
		transition = &StatusTransition{
			ServiceID:           entry.ID,
			DisplayName:         entry.DisplayName,
			PreviousStatus:      previous,
			CurrentStatus:       status,
			DetectedAt:          at,
			NotificationEnabled: entry.NotificationEnabled,
		}
	}

	entry.LastKnownStatus = status
	entry.IsAvailable = true
	entry.ErrorMessage = ""
	entry.LastCheckedAt = at
	return transition, true
}

// recordFailure marks the entry unavailable. It returns false when the entry
// left the set while its query was in flight.
func (s *serviceSet) recordFailure(entry *WatchedService, message string, at time.Time) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.contains(entry) {
		return false
	}

	entry.LastKnownStatus = StatusUnknown
	entry.IsAvailable = false
	entry.ErrorMessage = message
	entry.LastCheckedAt = at
	return true
}

func (s *serviceSet) contains(entry *WatchedService) bool {
	return s.index[serviceKey(entry.ID)] == entry
}
