package models

// Index is a secondary lookup declared on a kind: Name is how callers refer
// to it, Field is the entity field it reads.
type Index struct {
	Name  string
	Field string
}

var indexes = map[Kind][]Index{
	Notes: {
		{Name: "user", Field: FieldCreatedBy},
		{Name: "date", Field: FieldCreatedAt},
	},
	Gallery: {
		{Name: "category", Field: "category"},
		{Name: "company", Field: "company"},
		{Name: "user", Field: FieldCreatedBy},
	},
	Logs: {
		{Name: "actor", Field: "actor"},
		{Name: "action", Field: "action"},
		{Name: "date", Field: "timestamp"},
	},
}

// IndexesFor returns the indexes declared on k.
func IndexesFor(k Kind) []Index {
	return indexes[k]
}

// LookupIndex finds the index called name on k.
func LookupIndex(k Kind, name string) (Index, error) {
	for _, ix := range indexes[k] {
		if ix.Name == name {
			return ix, nil
		}
	}
	return Index{}, ErrUnknownIndex
}

// IndexValue is the value e contributes to ix on kind k. Older log records
// name their actor "user", so that field stands in for a missing actor.
func IndexValue(k Kind, ix Index, e Entity) string {
	v := e.Text(ix.Field)
	if v == "" && k == Logs && ix.Field == "actor" {
		v = e.Text("user")
	}
	return v
}
