package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Metadata is the flat document's descriptive header.
type Metadata struct {
	AppName       string `json:"appName"`
	StorageFormat string `json:"storageFormat"`
	BackupCount   int    `json:"backupCount"`
}

// Section is one collection inside the flat document. It is always written
// wrapped; the bare-array form is accepted on read only.
type Section struct {
	LastModified string   `json:"lastModified,omitempty"`
	ModifiedBy   string   `json:"modifiedBy,omitempty"`
	Data         []Entity `json:"data"`
}

// UnmarshalJSON accepts a bare array, a wrapped {data: [...]} object, and
// the legacy settings layout where data is a single object.
func (s *Section) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = Section{}
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var items []Entity
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*s = Section{Data: items}
		return nil
	}

	var wrapped struct {
		LastModified *string         `json:"lastModified"`
		ModifiedBy   *string         `json:"modifiedBy"`
		Data         json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	out := Section{}
	if wrapped.LastModified != nil {
		out.LastModified = *wrapped.LastModified
	}
	if wrapped.ModifiedBy != nil {
		out.ModifiedBy = *wrapped.ModifiedBy
	}

	data := bytes.TrimSpace(wrapped.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		if err := json.Unmarshal(data, &out.Data); err != nil {
			return err
		}
	case data[0] == '{':
		var single Entity
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		if len(single) > 0 {
			if single.ID() == "" {
				single[FieldID] = string(Settings)
			}
			out.Data = []Entity{single}
		}
	default:
		return fmt.Errorf("section data: unexpected %q", string(data[:1]))
	}
	*s = out
	return nil
}

// Items returns the section entities, tolerating a nil section.
func (s *Section) Items() []Entity {
	if s == nil {
		return nil
	}
	return s.Data
}

// Document is the flat single-blob store layout.
type Document struct {
	Version     string   `json:"version"`
	LastUpdated string   `json:"lastUpdated"`
	Metadata    Metadata `json:"metadata"`
	Users       *Section `json:"users"`
	Schedule    *Section `json:"schedule"`
	Notes       *Section `json:"notes"`
	Gallery     *Section `json:"gallery"`
	Companies   *Section `json:"companies"`
	Settings    *Section `json:"settings"`
	Logs        *Section `json:"logs"`
}

// NewDocument returns an empty document with every section present.
func NewDocument(now string) *Document {
	d := &Document{
		Version:     DocumentVersion,
		LastUpdated: now,
		Metadata: Metadata{
			AppName:       AppName,
			StorageFormat: StorageFormat,
		},
	}
	d.normalize()
	return d
}

// Section returns the section for k, or nil for an unknown kind.
func (d *Document) Section(k Kind) *Section {
	switch k {
	case Users:
		return d.Users
	case Schedule:
		return d.Schedule
	case Notes:
		return d.Notes
	case Gallery:
		return d.Gallery
	case Companies:
		return d.Companies
	case Settings:
		return d.Settings
	case Logs:
		return d.Logs
	}
	return nil
}

// normalize makes sure every section exists and holds a non-nil slice.
func (d *Document) normalize() {
	for _, p := range []**Section{&d.Users, &d.Schedule, &d.Notes, &d.Gallery, &d.Companies, &d.Settings, &d.Logs} {
		if *p == nil {
			*p = &Section{}
		}
		if (*p).Data == nil {
			(*p).Data = []Entity{}
		}
	}
	if d.Metadata.AppName == "" {
		d.Metadata.AppName = AppName
	}
	if d.Metadata.StorageFormat == "" {
		d.Metadata.StorageFormat = StorageFormat
	}
	if d.Version == "" {
		d.Version = DocumentVersion
	}
}

// DecodeDocument parses a stored flat document, normalising bare sections.
func DecodeDocument(b []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	d.normalize()
	return &d, nil
}

// ExportDocument is the portable backup format produced by either backend.
type ExportDocument struct {
	Version    string            `json:"version"`
	ExportedAt string            `json:"exportedAt"`
	ExportedBy string            `json:"exportedBy"`
	Data       map[Kind][]Entity `json:"data"`
}

// ParseDocument reads an import document. Both the export shape
// ({version, exportedAt, data: {...}}) and the flat document shape
// ({version, metadata, users, notes, ...}) are accepted; anything else
// yields ErrMalformedDocument.
func ParseDocument(raw []byte) (*ExportDocument, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedDocument)
	}

	var header struct {
		Version    string `json:"version"`
		ExportedAt string `json:"exportedAt"`
		ExportedBy string `json:"exportedBy"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedDocument, err)
	}
	out := &ExportDocument{
		Version:    header.Version,
		ExportedAt: header.ExportedAt,
		ExportedBy: header.ExportedBy,
		Data:       make(map[Kind][]Entity),
	}

	var sections map[string]json.RawMessage
	if rawData, ok := top["data"]; ok {
		if err := json.Unmarshal(rawData, &sections); err != nil || sections == nil {
			return nil, fmt.Errorf("%w: data is not an object", ErrMalformedDocument)
		}
	} else {
		_, hasMeta := top["metadata"]
		if out.Version == "" || !(hasMeta || hasAnyKind(top)) {
			return nil, fmt.Errorf("%w: missing data or version", ErrMalformedDocument)
		}
		sections = top
	}

	for _, k := range AllKinds {
		rawSection, ok := sections[string(k)]
		if !ok {
			continue
		}
		var s Section
		if err := json.Unmarshal(rawSection, &s); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, k, err)
		}
		out.Data[k] = s.Data
	}
	return out, nil
}

// CheckUniqueIDs returns ErrDuplicateID when an id occurs twice within one
// kind of data.
func CheckUniqueIDs(data map[Kind][]Entity) error {
	for _, k := range AllKinds {
		seen := make(map[string]struct{}, len(data[k]))
		for _, e := range data[k] {
			id := e.ID()
			if _, ok := seen[id]; ok {
				return fmt.Errorf("%w: %s/%s", ErrDuplicateID, k, id)
			}
			seen[id] = struct{}{}
		}
	}
	return nil
}

func hasAnyKind(top map[string]json.RawMessage) bool {
	for _, k := range AllKinds {
		if _, ok := top[string(k)]; ok {
			return true
		}
	}
	return false
}

// BackupFileName is the download name for an export taken at t,
// <appname>_backup_<YYYY-MM-DD>.json.
func BackupFileName(app string, t time.Time) string {
	name := strings.ToLower(strings.Join(strings.Fields(app), "_"))
	if name == "" {
		name = "estakaadi"
	}
	return fmt.Sprintf("%s_backup_%s.json", name, t.UTC().Format("2006-01-02"))
}
