package registry

import (
	"slices"
	"time"
)

// StableChannel is the default, non-auto-advancing channel.
const StableChannel = "stable"

// Manifest describes one published version of a cell. ID is "sector/name".
type Manifest struct {
	ID          string   `json:"id" yaml:"id"`
	Sector      string   `json:"sector" yaml:"sector"`
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version" yaml:"version"`
	Actions     []string `json:"actions" yaml:"actions"`
	Channels    []string `json:"channels" yaml:"channels"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Signature   string   `json:"signature,omitempty" yaml:"signature,omitempty"`
}

// HasAction reports whether the manifest declares action.
func (m Manifest) HasAction(action string) bool {
	return slices.Contains(m.Actions, action)
}

// Channel is a named pointer to a version.
type Channel struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	AutoAdvance bool      `json:"auto_advance"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Locations are the artifact references for one version. Server is the
// invocation endpoint, the others are storage keys.
type Locations struct {
	Server       string `json:"server"`
	ServerBundle string `json:"server_bundle,omitempty"`
	ClientBundle string `json:"client_bundle,omitempty"`
	Schema       string `json:"schema,omitempty"`
	// Actions are the actions this version exposes. Entries written before
	// the field existed leave it nil.
	Actions []string `json:"actions,omitempty"`
}

// Health is the last recorded probe outcome of a cell.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthFailed   Health = "failed"
)

// Valid reports whether h is one of the known values.
func (h Health) Valid() bool {
	switch h {
	case HealthHealthy, HealthDegraded, HealthFailed:
		return true
	}
	return false
}

// Metadata is bookkeeping that changes without a new publish.
type Metadata struct {
	Downloads    int64     `json:"downloads"`
	LastAccessed time.Time `json:"last_accessed,omitempty"`
	Health       Health    `json:"health"`
	PublishedAt  time.Time `json:"published_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Versions     []string  `json:"versions"`
}

// Entry is the stored registry record of one cell.
type Entry struct {
	Manifest  Manifest             `json:"manifest"`
	Channels  map[string]Channel   `json:"channels"`
	Artifacts map[string]Locations `json:"artifacts"`
	Metadata  Metadata             `json:"metadata"`
}

// HasVersion reports whether version was ever published.
func (e *Entry) HasVersion(version string) bool {
	if _, ok := e.Artifacts[version]; ok {
		return true
	}
	return slices.Contains(e.Metadata.Versions, version)
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Manifest.Actions = slices.Clone(e.Manifest.Actions)
	out.Manifest.Channels = slices.Clone(e.Manifest.Channels)
	out.Metadata.Versions = slices.Clone(e.Metadata.Versions)
	out.Channels = make(map[string]Channel, len(e.Channels))
	for k, v := range e.Channels {
		out.Channels[k] = v
	}
	out.Artifacts = make(map[string]Locations, len(e.Artifacts))
	for k, v := range e.Artifacts {
		v.Actions = slices.Clone(v.Actions)
		out.Artifacts[k] = v
	}
	return &out
}

// Artifacts is the publish payload accompanying a manifest.
type Artifacts struct {
	// Endpoint is where the version serves requests: an http(s) URL or
	// nats://subject-prefix. When empty the registry derives one from its
	// endpoint base URL, if configured.
	Endpoint     string `json:"endpoint,omitempty"`
	ServerBundle []byte `json:"server_bundle,omitempty"`
	ClientBundle []byte `json:"client_bundle,omitempty"`
	Schema       []byte `json:"schema,omitempty"`
}

// Resolution is the answer to "which version does id serve on channel".
// Resolutions may be shared through the cache and must not be modified.
type Resolution struct {
	Entry     *Entry    `json:"entry"`
	Channel   string    `json:"channel"`
	Version   string    `json:"version"`
	Locations Locations `json:"locations"`
}

// HasAction reports whether the resolved version exposes action.
func (r *Resolution) HasAction(action string) bool {
	if r.Locations.Actions != nil {
		return slices.Contains(r.Locations.Actions, action)
	}
	return r.Entry != nil && r.Entry.Manifest.HasAction(action)
}

// CellStats is the read-only summary returned by GetCellStats.
type CellStats struct {
	ID           string            `json:"id"`
	Sector       string            `json:"sector"`
	Name         string            `json:"name"`
	Latest       string            `json:"latest"`
	Channels     map[string]string `json:"channels"`
	Versions     []string          `json:"versions"`
	Downloads    int64             `json:"downloads"`
	LastAccessed time.Time         `json:"last_accessed,omitempty"`
	Health       Health            `json:"health"`
	PublishedAt  time.Time         `json:"published_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func statsOf(e *Entry) *CellStats {
	channels := make(map[string]string, len(e.Channels))
	for name, ch := range e.Channels {
		channels[name] = ch.Version
	}
	return &CellStats{
		ID:           e.Manifest.ID,
		Sector:       e.Manifest.Sector,
		Name:         e.Manifest.Name,
		Latest:       e.Manifest.Version,
		Channels:     channels,
		Versions:     slices.Clone(e.Metadata.Versions),
		Downloads:    e.Metadata.Downloads,
		LastAccessed: e.Metadata.LastAccessed,
		Health:       e.Metadata.Health,
		PublishedAt:  e.Metadata.PublishedAt,
		UpdatedAt:    e.Metadata.UpdatedAt,
	}
}
