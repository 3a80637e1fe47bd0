package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ninahq/nina/internal/domain/model"
	"github.com/ninahq/nina/pkg/metrics"
)

// MemoryStore keeps everything in process memory. Records keep their
// insertion position across upserts.
type MemoryStore struct {
	mu sync.RWMutex

	individuals   []model.Individual
	indexByID     map[string]int
	interactions  map[string][]model.Interaction       // by individual
	interactionAt map[string]interactionRef            // by interaction id
	actions       map[string][]model.DevelopmentAction // by individual
	actionAt      map[string]actionRef                 // by action id
	bootstrap     string

	metricsUpdateInterval time.Duration
	stopChan              chan struct{}
	stopOnce              sync.Once
	wg                    sync.WaitGroup
}

type interactionRef struct {
	owner string
	pos   int
}

type actionRef struct {
	owner string
	pos   int
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Ledger = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store and starts its roster
// gauge updater. Call Close to stop it.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		indexByID:             make(map[string]int),
		interactions:          make(map[string][]model.Interaction),
		interactionAt:         make(map[string]interactionRef),
		actions:               make(map[string][]model.DevelopmentAction),
		actionAt:              make(map[string]actionRef),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) putIndividual(ind model.Individual) {
	if i, ok := s.indexByID[ind.ID]; ok {
		s.individuals[i] = ind
		return
	}
	s.indexByID[ind.ID] = len(s.individuals)
	s.individuals = append(s.individuals, ind)
}

// ListIndividuals implements Store.
func (s *MemoryStore) ListIndividuals(_ context.Context) ([]model.Individual, error) {
	defer observe(DriverMemory, "list_individuals", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Individual, len(s.individuals))
	copy(out, s.individuals)
	return out, nil
}

// GetIndividual implements Store.
func (s *MemoryStore) GetIndividual(_ context.Context, id string) (model.Individual, error) {
	defer observe(DriverMemory, "get_individual", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.indexByID[id]
	if !ok {
		return model.Individual{}, ErrNotFound
	}
	return s.individuals[i], nil
}

// FindIndividualByEmail implements Store.
func (s *MemoryStore) FindIndividualByEmail(_ context.Context, email string) (model.Individual, error) {
	defer observe(DriverMemory, "find_individual_by_email", time.Now(), nil)
	email = strings.TrimSpace(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ind := range s.individuals {
		if strings.EqualFold(ind.Email, email) {
			return ind, nil
		}
	}
	return model.Individual{}, ErrNotFound
}

// UpsertIndividual implements Store.
func (s *MemoryStore) UpsertIndividual(_ context.Context, ind model.Individual) error {
	defer observe(DriverMemory, "upsert_individual", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putIndividual(ind)
	return nil
}

// ListInteractions implements Store.
func (s *MemoryStore) ListInteractions(_ context.Context, individualID string) ([]model.Interaction, error) {
	defer observe(DriverMemory, "list_interactions", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.interactions[individualID]
	out := make([]model.Interaction, len(src))
	copy(out, src)
	return out, nil
}

// UpsertInteraction implements Store. An interaction whose owner changed is
// moved to the end of the new owner's history.
func (s *MemoryStore) UpsertInteraction(_ context.Context, it model.Interaction) error {
	defer observe(DriverMemory, "upsert_interaction", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.interactionAt[it.ID]; ok {
		if ref.owner == it.IndividualID {
			s.interactions[ref.owner][ref.pos] = it
			return nil
		}
		s.removeInteraction(ref)
	}
	s.interactionAt[it.ID] = interactionRef{owner: it.IndividualID, pos: len(s.interactions[it.IndividualID])}
	s.interactions[it.IndividualID] = append(s.interactions[it.IndividualID], it)
	return nil
}

func (s *MemoryStore) removeInteraction(ref interactionRef) {
	list := s.interactions[ref.owner]
	list = append(list[:ref.pos], list[ref.pos+1:]...)
	s.interactions[ref.owner] = list
	for i := ref.pos; i < len(list); i++ {
		s.interactionAt[list[i].ID] = interactionRef{owner: ref.owner, pos: i}
	}
}

// ListActions implements Store.
func (s *MemoryStore) ListActions(_ context.Context, individualID string) ([]model.DevelopmentAction, error) {
	defer observe(DriverMemory, "list_actions", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.actions[individualID]
	out := make([]model.DevelopmentAction, len(src))
	copy(out, src)
	return out, nil
}

// UpsertAction implements Store.
func (s *MemoryStore) UpsertAction(_ context.Context, a model.DevelopmentAction) error {
	defer observe(DriverMemory, "upsert_action", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.actionAt[a.ID]; ok {
		if ref.owner == a.IndividualID {
			s.actions[ref.owner][ref.pos] = a
			return nil
		}
		list := s.actions[ref.owner]
		list = append(list[:ref.pos], list[ref.pos+1:]...)
		s.actions[ref.owner] = list
		for i := ref.pos; i < len(list); i++ {
			s.actionAt[list[i].ID] = actionRef{owner: ref.owner, pos: i}
		}
	}
	s.actionAt[a.ID] = actionRef{owner: a.IndividualID, pos: len(s.actions[a.IndividualID])}
	s.actions[a.IndividualID] = append(s.actions[a.IndividualID], a)
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(), nil
}

func (s *MemoryStore) countLocked() Counts {
	c := Counts{
		Individuals:  len(s.individuals),
		Interactions: len(s.interactionAt),
		Actions:      len(s.actionAt),
	}
	for _, ind := range s.individuals {
		if ind.Tracked {
			c.Tracked++
		}
	}
	return c
}

// ConsumeBootstrap implements Ledger.
func (s *MemoryStore) ConsumeBootstrap(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bootstrap != "" {
		return ErrBootstrapRetired
	}
	s.bootstrap = email
	return nil
}

// Close stops the background updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// startMetricsUpdater periodically publishes roster size gauges.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	s.mu.RLock()
	c := s.countLocked()
	s.mu.RUnlock()
	metrics.UpdateRosterSize(c.Individuals, c.Tracked)
}
