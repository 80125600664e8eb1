package ontology

type opKind int

const (
	opUpdate opKind = iota + 1
	opDelete
)

// pendingOp holds the pre-image of one optimistic change.
type pendingOp struct {
	collection Collection
	slug       string
	kind       opKind
	// index is the entity position when the change was applied, -1 when the
	// entity was not loaded.
	index int
	// next is the slug that followed the entity when the change was applied,
	// empty when it was last.
	next   string
	before Entity
}

func (op pendingOp) applied() bool {
	return op.index >= 0
}

// rollback restores the pre-image into entities. Other entities are left as
// they are.
func (op pendingOp) rollback(entities []Entity) []Entity {
	if !op.applied() {
		return entities
	}
	before := op.before.clone()
	switch op.kind {
	case opUpdate:
		if i := indexOf(entities, op.slug); i >= 0 {
			entities[i] = before
			return entities
		}
		return insertAt(entities, op.position(entities), before)
	case opDelete:
		if indexOf(entities, op.slug) >= 0 {
			return entities
		}
		return insertAt(entities, op.position(entities), before)
	default:
		return entities
	}
}

// position is where the pre-image goes back: before its old successor when
// that is still loaded, at the end when it was last, else at the old index.
func (op pendingOp) position(entities []Entity) int {
	if op.next == "" {
		return len(entities)
	}
	if i := indexOf(entities, op.next); i >= 0 {
		return i
	}
	return op.index
}

func insertAt(entities []Entity, index int, entity Entity) []Entity {
	if index > len(entities) {
		index = len(entities)
	}
	entities = append(entities, Entity{})
	copy(entities[index+1:], entities[index:])
	entities[index] = entity
	return entities
}
