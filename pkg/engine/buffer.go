package engine

// OpKind distinguishes the row-level mutations the decomposer emits.
type OpKind uint8

const (
	OpInsertRow OpKind = iota
	OpUpdateColumn
	OpDeleteRow
	OpInsertMultiValue
	OpDeleteMultiValue
	// OpIncrementClassCount bumps rdfs_Class_instance_count for the class
	// URI carried in Column, once per resource newly attached to that
	// class within the transaction.
	OpIncrementClassCount
)

// TableOp is one relational mutation produced by decomposing a statement.
// The engine emits these in dependency order at flush time: class table
// inserts before property column updates, multi-value side-table rows
// next, class instance counters last.
type TableOp struct {
	Kind       OpKind
	Table      string
	ResourceID int64
	Column     string // OpUpdateColumn: column name. OpIncrementClassCount: class URI.
	Value      Value  // OpUpdateColumn, OpInsertMultiValue, OpDeleteMultiValue
	TargetID   int64  // OpInsertMultiValue, OpDeleteMultiValue: the related resource id
}

// FullTextOp is a full-text index mutation staged ahead of a resource's
// final FullText values: an explicit retraction of a property's previously
// persisted text, emitted at flush time before the latest value for that
// property (or any other fts-synced property) is pushed.
type FullTextOp struct {
	PropertyURI string
	Text        string
}

// singleValueEntry records enough about the first staged value for a
// single-valued property to undo its effects if a conflicting second value
// arrives later in the same transaction.
type singleValueEntry struct {
	value        Value
	opStart      int
	opEnd        int
	fullTextURIs []string
}

// ResourceBuffer accumulates every pending table operation touching one
// resource within a transaction, plus the full-text fields and constraint
// bookkeeping it needs at flush time.
type ResourceBuffer struct {
	ResourceID int64
	Ops        []TableOp
	// FullText maps property URI to the latest staged literal text for
	// properties flagged full-text-synced in the ontology.
	FullText map[string]string
	// FTSRetractions are explicit "clear this property's indexed text"
	// entries staged once per resource, the first time an fts-synced
	// property is touched on a subject that may already carry persisted
	// text for other fts-synced properties.
	FTSRetractions []FullTextOp
	ftsPreloaded   bool

	// NewSubject is set when a tracker:uri statement renames this
	// resource; flush issues the rename before any other op.
	NewSubject string

	// Types is the set of class URIs (including super-classes) this
	// resource is known to belong to, union of what rdf:type statements
	// asserted this transaction and what checkDomain lazily loaded from
	// the persisted rdfs_Resource_rdf_type table.
	Types       map[string]bool
	typesLoaded bool

	singleValued map[string]singleValueEntry
}

func (rb *ResourceBuffer) hasType(classURI string) bool {
	return rb.Types != nil && rb.Types[classURI]
}

func (rb *ResourceBuffer) markType(classURI string) {
	if rb.Types == nil {
		rb.Types = make(map[string]bool)
	}
	rb.Types[classURI] = true
}

func (rb *ResourceBuffer) singleValueOf(propertyURI string) (Value, bool) {
	e, ok := rb.singleValued[propertyURI]
	if !ok {
		return Value{}, false
	}
	return e.value, true
}

func (rb *ResourceBuffer) recordSingleValue(propertyURI string, value Value, opStart int, fullTextURIs []string) {
	if rb.singleValued == nil {
		rb.singleValued = make(map[string]singleValueEntry)
	}
	rb.singleValued[propertyURI] = singleValueEntry{
		value:        value,
		opStart:      opStart,
		opEnd:        len(rb.Ops),
		fullTextURIs: fullTextURIs,
	}
}

// discardSingleValue undoes every TableOp and FullText entry staged by the
// first insert of propertyURI's value, leaving earlier and later unrelated
// ops untouched.
func (rb *ResourceBuffer) discardSingleValue(propertyURI string) {
	e, ok := rb.singleValued[propertyURI]
	if !ok {
		return
	}
	if e.opStart <= len(rb.Ops) && e.opEnd <= len(rb.Ops) {
		rb.Ops = append(rb.Ops[:e.opStart], rb.Ops[e.opEnd:]...)
	}
	for _, uri := range e.fullTextURIs {
		delete(rb.FullText, uri)
	}
	delete(rb.singleValued, propertyURI)
}

// UpdateBuffer stages every table operation issued during one transaction
// before they are flushed to the store. Resources are tracked in first-
// touched order so flush can walk them deterministically.
type UpdateBuffer struct {
	order     []int64
	resources map[int64]*ResourceBuffer
}

// NewUpdateBuffer returns an empty buffer.
func NewUpdateBuffer() *UpdateBuffer {
	return &UpdateBuffer{resources: make(map[int64]*ResourceBuffer)}
}

// resourceBuffer returns (creating if necessary) the ResourceBuffer for id.
func (b *UpdateBuffer) resourceBuffer(id int64) *ResourceBuffer {
	rb, ok := b.resources[id]
	if !ok {
		rb = &ResourceBuffer{ResourceID: id, FullText: make(map[string]string)}
		b.resources[id] = rb
		b.order = append(b.order, id)
	}
	return rb
}

// Add stages a TableOp against its ResourceID's buffer.
func (b *UpdateBuffer) Add(op TableOp) {
	rb := b.resourceBuffer(op.ResourceID)
	rb.Ops = append(rb.Ops, op)
}

// StageFullText records the latest literal text a full-text-synced
// property holds for resourceID, overwriting any value staged earlier in
// the same transaction.
func (b *UpdateBuffer) StageFullText(resourceID int64, propertyURI, text string) {
	rb := b.resourceBuffer(resourceID)
	rb.FullText[propertyURI] = text
}

// StageFullTextRetraction records an explicit "clear this property's
// indexed text" entry for resourceID, emitted at flush before the
// resource's final FullText values.
func (b *UpdateBuffer) StageFullTextRetraction(resourceID int64, propertyURI, oldText string) {
	rb := b.resourceBuffer(resourceID)
	rb.FTSRetractions = append(rb.FTSRetractions, FullTextOp{PropertyURI: propertyURI, Text: oldText})
}

// SetNewSubject records a tracker:uri rename staged for resourceID.
func (b *UpdateBuffer) SetNewSubject(resourceID int64, newURI string) {
	rb := b.resourceBuffer(resourceID)
	rb.NewSubject = newURI
}

// Resources returns every touched ResourceBuffer in first-touched order.
func (b *UpdateBuffer) Resources() []*ResourceBuffer {
	out := make([]*ResourceBuffer, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.resources[id])
	}
	return out
}

// Len reports how many distinct resources have staged operations.
func (b *UpdateBuffer) Len() int { return len(b.order) }
