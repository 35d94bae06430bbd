package service

import (
	"context"
	"fmt"

	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/models"
	"go.uber.org/zap"
)

// DefaultSearchFields are searched when Search is given no fields.
var DefaultSearchFields = []string{"title", "name", "content"}

// Change actions carried by events.TopicDataChanged.
const (
	ChangeAdd    = "add"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
	ChangeImport = "import"
	ChangeClear  = "clear"
)

// GetAll returns every entity of kind. It never fails: an unknown kind or a
// backend error yields an empty list and a log line.
func (s *DataService) GetAll(ctx context.Context, kind models.Kind) []models.Entity {
	if !kind.Valid() {
		s.log.Warn("getAll on unknown kind", zap.String("kind", string(kind)))
		return []models.Entity{}
	}
	items, err := s.backend.GetAll(ctx, kind)
	if err != nil {
		s.log.Error("getAll failed", zap.String("kind", string(kind)), zap.Error(err))
		return []models.Entity{}
	}
	return items
}

// Get returns one entity or models.ErrNotFound.
func (s *DataService) Get(ctx context.Context, kind models.Kind, id string) (models.Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	return s.backend.Get(ctx, kind, id)
}

// Save updates e when it carries an id and adds it otherwise. It returns
// the entity id.
func (s *DataService) Save(ctx context.Context, kind models.Kind, e models.Entity, actor string) (string, error) {
	if id := e.ID(); id != "" {
		if _, err := s.Update(ctx, kind, id, e, actor); err != nil {
			return "", err
		}
		return id, nil
	}
	return s.Add(ctx, kind, e, actor)
}

// Add stores a new entity, filling in id, createdAt and createdBy when
// absent, and returns its id. An id already present in kind yields
// models.ErrDuplicateID.
func (s *DataService) Add(ctx context.Context, kind models.Kind, e models.Entity, actor string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	actor = actorOrSystem(actor)

	item := e.Clone()
	if !item.Has(models.FieldID) {
		item[models.FieldID] = s.ids.NewID(string(kind))
	} else if _, err := s.backend.Get(ctx, kind, item.ID()); err == nil {
		return "", fmt.Errorf("add to %s: %w: %s", kind, models.ErrDuplicateID, item.ID())
	}
	if !item.Has(models.FieldCreatedAt) {
		item[models.FieldCreatedAt] = s.ids.Stamp()
	}
	if !item.Has(models.FieldCreatedBy) {
		item[models.FieldCreatedBy] = actor
	}

	if err := s.backend.Insert(ctx, kind, item, actor); err != nil {
		return "", fmt.Errorf("add to %s: %w", kind, err)
	}

	s.addLog(ctx, models.ActionCreate, fmt.Sprintf("Added item to %s", kind), actor)
	s.changed(ctx, ChangeAdd, kind, item)
	return item.ID(), nil
}

// Update overlays patch onto the entity with id and stamps updatedAt and
// updatedBy. A missing id yields models.ErrNotFound.
func (s *DataService) Update(ctx context.Context, kind models.Kind, id string, patch models.Entity, actor string) (models.Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	actor = actorOrSystem(actor)

	p := patch.Clone()
	delete(p, models.FieldID)
	p[models.FieldUpdatedAt] = s.ids.Stamp()
	p[models.FieldUpdatedBy] = actor

	updated, err := s.backend.Update(ctx, kind, id, p, actor)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", kind, id, err)
	}

	s.addLog(ctx, models.ActionUpdate, fmt.Sprintf("Updated item in %s", kind), actor)
	s.changed(ctx, ChangeUpdate, kind, updated)
	return updated, nil
}

// Delete removes the entity with id. Deleting an absent id is not an
// error; it reports false and records nothing.
func (s *DataService) Delete(ctx context.Context, kind models.Kind, id string, actor string) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	actor = actorOrSystem(actor)

	existed, err := s.backend.Delete(ctx, kind, id, actor)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", kind, id, err)
	}
	if !existed {
		return false, nil
	}

	s.addLog(ctx, models.ActionDelete, fmt.Sprintf("Deleted item from %s", kind), actor)
	s.changed(ctx, ChangeDelete, kind, id)
	return true, nil
}

// Search returns the entities of kind where any of fields contains query,
// ignoring case, in GetAll order.
func (s *DataService) Search(ctx context.Context, kind models.Kind, query string, fields []string) []models.Entity {
	if len(fields) == 0 {
		fields = DefaultSearchFields
	}
	out := make([]models.Entity, 0)
	for _, e := range s.GetAll(ctx, kind) {
		if e.Matches(query, fields) {
			out = append(out, e)
		}
	}
	return out
}

// FindBy looks entities up through a declared secondary index.
func (s *DataService) FindBy(ctx context.Context, kind models.Kind, index, value string) ([]models.Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	return s.backend.FindBy(ctx, kind, index, value)
}

// changed publishes a data change and checks the storage quota.
func (s *DataService) changed(ctx context.Context, action string, kind models.Kind, payload any) {
	s.bus.Publish(events.Event{Topic: events.TopicDataChanged, Action: action, Kind: kind, Payload: payload})
	s.checkQuota(ctx)
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return models.SystemActor
	}
	return actor
}
