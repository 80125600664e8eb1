package ontology

import "context"

// LoadObjects loads the objects collection.
func (s *Store) LoadObjects(ctx context.Context) { s.Load(ctx, Objects) }

// LoadLinks loads the links collection.
func (s *Store) LoadLinks(ctx context.Context) { s.Load(ctx, Links) }

// LoadActions loads the actions collection.
func (s *Store) LoadActions(ctx context.Context) { s.Load(ctx, Actions) }

func (s *Store) CreateObject(ctx context.Context, data map[string]any) (Entity, error) {
	return s.Create(ctx, Objects, data)
}

func (s *Store) CreateLink(ctx context.Context, data map[string]any) (Entity, error) {
	return s.Create(ctx, Links, data)
}

func (s *Store) CreateAction(ctx context.Context, data map[string]any) (Entity, error) {
	return s.Create(ctx, Actions, data)
}

func (s *Store) UpdateObject(ctx context.Context, slug string, updates map[string]any) error {
	return s.Update(ctx, Objects, slug, updates)
}

func (s *Store) UpdateLink(ctx context.Context, slug string, updates map[string]any) error {
	return s.Update(ctx, Links, slug, updates)
}

func (s *Store) UpdateAction(ctx context.Context, slug string, updates map[string]any) error {
	return s.Update(ctx, Actions, slug, updates)
}

func (s *Store) DeleteObject(ctx context.Context, slug string) error {
	return s.Delete(ctx, Objects, slug)
}

func (s *Store) DeleteLink(ctx context.Context, slug string) error {
	return s.Delete(ctx, Links, slug)
}

func (s *Store) DeleteAction(ctx context.Context, slug string) error {
	return s.Delete(ctx, Actions, slug)
}

// Objects returns the loaded objects.
func (s *Store) Objects() []Entity { return s.Entities(Objects) }

// Links returns the loaded links.
func (s *Store) Links() []Entity { return s.Entities(Links) }

// Actions returns the loaded actions.
func (s *Store) Actions() []Entity { return s.Entities(Actions) }
