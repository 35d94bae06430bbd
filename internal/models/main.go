// Package models defines the entity kinds, document shapes and audit
// records shared by the storage backends and the data service.
package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity id does not exist in a kind.
	ErrNotFound = errors.New("entity not found")
	// ErrUnknownKind is returned for a collection name outside AllKinds.
	ErrUnknownKind = errors.New("unknown entity kind")
	// ErrUnknownIndex is returned when a kind declares no such index.
	ErrUnknownIndex = errors.New("unknown index")
	// ErrMalformedDocument is returned when an import document has neither
	// the export shape nor the flat document shape.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrDuplicateID is returned when an id is already taken within a kind.
	ErrDuplicateID = errors.New("duplicate id")
)

// Kind names an entity collection.
type Kind string

const (
	// Users holds application accounts.
	Users Kind = "users"
	// Schedule maps week days to the companies expected that day.
	Schedule Kind = "schedule"
	// Notes holds free-form notes.
	Notes Kind = "notes"
	// Gallery holds photo records with inline base64 payloads.
	Gallery Kind = "gallery"
	// Companies is the company registry.
	Companies Kind = "companies"
	// Settings holds application settings records.
	Settings Kind = "settings"
	// Logs is the audit log.
	Logs Kind = "logs"
)

// AllKinds lists every collection in document order.
var AllKinds = []Kind{Users, Schedule, Notes, Gallery, Companies, Settings, Logs}

// ParseKind validates a collection name.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Valid reports whether k is one of AllKinds.
func (k Kind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil
}

const (
	// AppName is written into the flat document metadata.
	AppName = "Estakaadi Planner"
	// StorageFormat tags the flat document layout.
	StorageFormat = "centralized"
	// DocumentVersion is the flat document schema version.
	DocumentVersion = "1.0.0"
	// ExportVersion is the export document format version.
	ExportVersion = "2.0.0"

	// SystemActor is recorded for operations without a user.
	SystemActor = "system"
	// MigrationActor tags entities copied in by migration.
	MigrationActor = "migration"
)

// Audit actions.
const (
	ActionCreate  = "data_create"
	ActionUpdate  = "data_update"
	ActionDelete  = "data_delete"
	ActionImport  = "data_import"
	ActionExport  = "data_export"
	ActionMigrate = "data_migrate"
	ActionRestore = "data_restore"
	ActionClear   = "data_clear"
	ActionInit    = "system_init"
)
