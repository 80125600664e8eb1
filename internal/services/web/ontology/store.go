// Package ontology is the optimistic entity store of one session context. It
// mirrors the objects, links and actions collections, applies updates and
// deletes locally before the platform API confirms them, and restores the
// pre-image when the API refuses.
package ontology

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/captify/captify/internal/platform/otel"
	"github.com/captify/captify/internal/services/shared/apiclient"
)

const serviceOntology = "ontology"

// Status is the shared load and error state.
type Status struct {
	Loading map[Collection]bool `json:"loading"`
	Error   string              `json:"error,omitempty"`
}

// Config controls store behavior.
type Config struct {
	Logger *zap.Logger
}

// Store holds the loaded collections. Update and Delete on the same entity run
// one at a time; everything else runs concurrently.
type Store struct {
	runner apiclient.Runner
	logger *zap.Logger
	tracer trace.Tracer
	keys   *keyedMutex

	mu       sync.RWMutex
	entities map[Collection][]Entity
	loading  map[Collection]bool
	lastErr  string
}

// New builds a store calling runner.
func New(runner apiclient.Runner, cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		runner:   runner,
		logger:   logger,
		tracer:   otel.Tracer("captify/web/ontology"),
		keys:     newKeyedMutex(),
		entities: make(map[Collection][]Entity),
		loading:  make(map[Collection]bool),
	}
}

// Load replaces collection c with the server list. Failures are recorded in
// the shared error and leave the collection as it was.
func (s *Store) Load(ctx context.Context, c Collection) {
	if !c.Valid() {
		s.setError(ErrUnknownCollection)
		return
	}
	s.setLoading(true, c)
	defer s.setLoading(false, c)

	entities, err := s.list(ctx, c)
	if err != nil {
		s.logger.Warn("load collection failed", zap.String("collection", string(c)), zap.Error(err))
		s.setError(err)
		return
	}
	s.mu.Lock()
	s.entities[c] = entities
	s.mu.Unlock()
}

// LoadAll lists every collection concurrently and commits the successful
// results together. Failures are joined into the shared error.
func (s *Store) LoadAll(ctx context.Context) {
	s.setLoading(true, Collections...)
	defer s.setLoading(false, Collections...)

	results := make([][]Entity, len(Collections))
	failures := make([]error, len(Collections))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, c := range Collections {
		group.Go(func() error {
			results[i], failures[i] = s.list(groupCtx, c)
			return nil
		})
	}
	_ = group.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range Collections {
		if failures[i] == nil {
			s.entities[c] = results[i]
		}
	}
	if err := errors.Join(failures...); err != nil {
		s.logger.Warn("load collections failed", zap.Error(err))
		s.lastErr = err.Error()
	}
}

func (s *Store) list(ctx context.Context, c Collection) ([]Entity, error) {
	entities, err := apiclient.RunItems[Entity](ctx, s.runner, apiclient.Request{
		Service:   serviceOntology,
		Operation: "list",
		Table:     string(c),
	}).Unpack()
	if err != nil {
		return nil, newRemoteError(c, "list", err)
	}
	return entities, nil
}

// Create asks the server to create an entity and appends the returned entity.
// Nothing changes locally when the call fails.
func (s *Store) Create(ctx context.Context, c Collection, data map[string]any) (Entity, error) {
	if !c.Valid() {
		return Entity{}, s.setError(ErrUnknownCollection)
	}
	ctx, span := s.tracer.Start(ctx, "ontology.Create")
	defer span.End()
	span.SetAttributes(attribute.String("captify.collection", string(c)))

	entity, err := apiclient.RunItem[Entity](ctx, s.runner, apiclient.Request{
		Service:   serviceOntology,
		Operation: "create",
		Table:     string(c),
		Data:      map[string]any{"item": data},
	}).Unpack()
	if err != nil {
		remote := newRemoteError(c, "create", err)
		recordFailure(span, remote)
		return Entity{}, s.setError(remote)
	}

	s.mu.Lock()
	s.entities[c] = append(s.entities[c], entity.clone())
	s.mu.Unlock()
	return entity, nil
}

// Update merges updates into the local entity at once, then asks the server
// to apply them. A failed call restores the entity's pre-image.
func (s *Store) Update(ctx context.Context, c Collection, slug string, updates map[string]any) error {
	if !c.Valid() {
		return s.setError(ErrUnknownCollection)
	}
	if slug == "" {
		return s.setError(ErrSlugRequired)
	}
	unlock := s.keys.lock(string(c) + "/" + slug)
	defer unlock()

	ctx, span := s.tracer.Start(ctx, "ontology.Update")
	defer span.End()
	span.SetAttributes(attribute.String("captify.collection", string(c)), attribute.String("captify.slug", slug))

	op := s.apply(c, slug, opUpdate, func(entities []Entity, i int) []Entity {
		entities[i] = entities[i].merge(updates)
		return entities
	})

	err := apiclient.RunAck(ctx, s.runner, apiclient.Request{
		Service:   serviceOntology,
		Operation: "update",
		Table:     string(c),
		Data:      map[string]any{"slug": slug, "updates": updates},
	})
	if err != nil {
		remote := newRemoteError(c, "update", err)
		recordFailure(span, remote)
		s.rollback(op)
		return s.setError(remote)
	}
	return nil
}

// Delete removes the local entity at once, then asks the server to delete it.
// A failed call re-inserts the entity at its original position.
func (s *Store) Delete(ctx context.Context, c Collection, slug string) error {
	if !c.Valid() {
		return s.setError(ErrUnknownCollection)
	}
	if slug == "" {
		return s.setError(ErrSlugRequired)
	}
	unlock := s.keys.lock(string(c) + "/" + slug)
	defer unlock()

	ctx, span := s.tracer.Start(ctx, "ontology.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("captify.collection", string(c)), attribute.String("captify.slug", slug))

	op := s.apply(c, slug, opDelete, func(entities []Entity, i int) []Entity {
		return append(entities[:i:i], entities[i+1:]...)
	})

	err := apiclient.RunAck(ctx, s.runner, apiclient.Request{
		Service:   serviceOntology,
		Operation: "delete",
		Table:     string(c),
		Data:      map[string]any{"slug": slug},
	})
	if err != nil {
		remote := newRemoteError(c, "delete", err)
		recordFailure(span, remote)
		s.rollback(op)
		return s.setError(remote)
	}
	return nil
}

// apply records the pre-image of slug and runs change on the collection.
func (s *Store) apply(c Collection, slug string, kind opKind, change func([]Entity, int) []Entity) pendingOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities := s.entities[c]
	op := pendingOp{collection: c, slug: slug, kind: kind, index: indexOf(entities, slug)}
	if !op.applied() {
		return op
	}
	op.before = entities[op.index].clone()
	if op.index+1 < len(entities) {
		op.next = entities[op.index+1].Slug
	}
	s.entities[c] = change(entities, op.index)
	return op
}

func (s *Store) rollback(op pendingOp) {
	if !op.applied() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[op.collection] = op.rollback(s.entities[op.collection])
	s.logger.Debug("optimistic change rolled back",
		zap.String("collection", string(op.collection)),
		zap.String("slug", op.slug),
	)
}

// Reset clears every collection and the status.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = make(map[Collection][]Entity)
	s.loading = make(map[Collection]bool)
	s.lastErr = ""
}

// Entities returns a copy of collection c.
func (s *Store) Entities(c Collection) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntities(s.entities[c])
}

// Find looks up an entity by slug.
func (s *Store) Find(c Collection, slug string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entities := s.entities[c]
	if i := indexOf(entities, slug); i >= 0 {
		return entities[i].clone(), true
	}
	return Entity{}, false
}

// Status returns the loading flags and the last error.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loading := make(map[Collection]bool, len(Collections))
	for _, c := range Collections {
		loading[c] = s.loading[c]
	}
	return Status{Loading: loading, Error: s.lastErr}
}

// Error returns the last recorded error message.
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Store) setLoading(loading bool, collections ...Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range collections {
		s.loading[c] = loading
	}
}

func (s *Store) setError(err error) error {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	return err
}

func recordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
