package model

import "sync"

// ModelKind tells whether a model runs next to the backend or in a cloud service
type ModelKind string

const (
	ModelKindLocal  ModelKind = "local"
	// ModelKindRemote is sent as "api", the value the backend expects
	ModelKindRemote ModelKind = "api"
)

// SelectedModel describes the model the backend should use.
// JSON names match the backend's request schema.
type SelectedModel struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"name"`
	Kind          ModelKind `json:"type"`
	ProviderLabel string    `json:"provider"`
}

// Catalog is the static list of selectable models
var Catalog = []SelectedModel{
	{ID: "llama3.2:1b", DisplayName: "Llama 3.2 1B", Kind: ModelKindLocal, ProviderLabel: "Local (Ollama)"},
	{ID: "llama-3.3-70b-versatile", DisplayName: "Llama 3.3 70B (Groq)", Kind: ModelKindRemote, ProviderLabel: "Groq Cloud"},
}

// DefaultModel returns the first catalog entry
func DefaultModel() SelectedModel {
	return Catalog[0]
}

// LookupModel finds a catalog entry by id
func LookupModel(id string) (SelectedModel, bool) {
	for _, m := range Catalog {
		if m.ID == id {
			return m, true
		}
	}
	return SelectedModel{}, false
}

// NextModel returns the catalog entry after current, wrapping around
func NextModel(current SelectedModel) SelectedModel {
	for i, m := range Catalog {
		if m.ID == current.ID {
			return Catalog[(i+1)%len(Catalog)]
		}
	}
	return DefaultModel()
}

// Selection holds the globally selected model. Only explicit user
// selection changes it; the chat controller only reads it.
type Selection struct {
	mu        sync.RWMutex
	current   SelectedModel
	listeners []func(SelectedModel)
}

func NewSelection(initial SelectedModel) *Selection {
	return &Selection{current: initial}
}

func (s *Selection) Get() SelectedModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set changes the selected model and notifies listeners
func (s *Selection) Set(m SelectedModel) {
	s.mu.Lock()
	if s.current == m {
		s.mu.Unlock()
		return
	}
	s.current = m
	listeners := append([]func(SelectedModel){}, s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(m)
	}
}

// OnChange registers a listener called after every change
func (s *Selection) OnChange(l func(SelectedModel)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}
