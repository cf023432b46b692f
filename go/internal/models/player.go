package models

// Player represents a participant in a knockout room
type Player struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"` // opaque, carried through untouched
}

// PlayerRef is the public reference to a player sent to clients
type PlayerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ref returns the public reference for the player
func (p Player) Ref() PlayerRef {
	return PlayerRef{ID: p.ID, Name: p.Name}
}
