package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/matchup-engine/internal/matchup"
)

// Dataset bundles one upload: the parsed receiver table (already merged
// with the weekly schedule), the defense profiles, and the warnings
// produced at load time. Immutable once stored.
type Dataset struct {
	ID              string                            `json:"id"`
	Receivers       []matchup.ReceiverSplit           `json:"receivers"`
	Defenses        map[string]matchup.DefenseProfile `json:"defenses"`
	MissingDefenses []string                          `json:"missing_defenses,omitempty"`
	CreatedAt       time.Time                         `json:"created_at"`
	ExpiresAt       time.Time                         `json:"expires_at"`
}

// DatasetSummary is the lightweight view returned by the API.
type DatasetSummary struct {
	ID              string    `json:"id"`
	ReceiverCount   int       `json:"receiver_count"`
	DefenseCount    int       `json:"defense_count"`
	MissingDefenses []string  `json:"missing_defenses,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// DatasetStore holds uploaded datasets in memory for the duration of
// their TTL. A cron sweeper evicts expired entries so abandoned uploads
// don't accumulate.
type DatasetStore struct {
	mu        sync.RWMutex
	datasets  map[string]*Dataset
	ttl       time.Duration
	logger    *logrus.Logger
	cron      *cron.Cron
	isRunning bool
}

func NewDatasetStore(ttl time.Duration, logger *logrus.Logger) *DatasetStore {
	return &DatasetStore{
		datasets: make(map[string]*Dataset),
		ttl:      ttl,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the expiry sweeper.
func (s *DatasetStore) Start(sweepSchedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("dataset store is already running")
	}

	if _, err := s.cron.AddFunc(sweepSchedule, s.sweepExpired); err != nil {
		return fmt.Errorf("failed to schedule dataset sweeper: %w", err)
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.Info("Dataset store started")
	return nil
}

// Stop halts the sweeper.
func (s *DatasetStore) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.logger.Info("Dataset store stopped")
}

// Put stores a new dataset and returns its generated handle.
func (s *DatasetStore) Put(receivers []matchup.ReceiverSplit, defenses map[string]matchup.DefenseProfile, missing []string) *Dataset {
	now := time.Now().UTC()
	ds := &Dataset{
		ID:              uuid.NewString(),
		Receivers:       receivers,
		Defenses:        defenses,
		MissingDefenses: missing,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}

	s.mu.Lock()
	s.datasets[ds.ID] = ds
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"dataset_id": ds.ID,
		"receivers":  len(receivers),
		"defenses":   len(defenses),
	}).Info("Dataset stored")

	return ds
}

// Get returns the dataset for the handle, or an error if the handle is
// unknown or the dataset has expired.
func (s *DatasetStore) Get(id string) (*Dataset, error) {
	s.mu.RLock()
	ds, ok := s.datasets[id]
	s.mu.RUnlock()

	if !ok || time.Now().After(ds.ExpiresAt) {
		return nil, fmt.Errorf("dataset %s not found", id)
	}
	return ds, nil
}

// Delete removes a dataset explicitly.
func (s *DatasetStore) Delete(id string) {
	s.mu.Lock()
	delete(s.datasets, id)
	s.mu.Unlock()
}

// Count returns the number of live datasets.
func (s *DatasetStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets)
}

func (s *DatasetStore) sweepExpired() {
	now := time.Now()
	removed := 0

	s.mu.Lock()
	for id, ds := range s.datasets {
		if now.After(ds.ExpiresAt) {
			delete(s.datasets, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Infof("Swept %d expired datasets", removed)
	}
}

// Summary builds the API view of a dataset.
func (ds *Dataset) Summary() DatasetSummary {
	return DatasetSummary{
		ID:              ds.ID,
		ReceiverCount:   len(ds.Receivers),
		DefenseCount:    len(ds.Defenses),
		MissingDefenses: ds.MissingDefenses,
		CreatedAt:       ds.CreatedAt,
		ExpiresAt:       ds.ExpiresAt,
	}
}
