package domain

import "time"

type ConflictReason string

const (
	// Le serveur a changé depuis la dernière synchro de l'entrée.
	ConflictRemoteNewer ConflictReason = "remote_newer"
	// Le serveur a refusé la valeur locale telle quelle.
	ConflictValidation ConflictReason = "validation"
	ConflictNotFound   ConflictReason = "not_found"
)

// Conflict accompagne toute entrée CONFLICTED. Remote est la version serveur
// connue au moment de la détection (nil si inconnue).
type Conflict struct {
	LocalID    int64
	Reason     ConflictReason
	Remote     *ListEntry
	Message    string
	DetectedAt time.Time
}

type ConflictChoice string

const (
	KeepLocal   ConflictChoice = "keep-local"
	AdoptRemote ConflictChoice = "adopt-remote"
)

func (c ConflictChoice) Valid() bool {
	return c == KeepLocal || c == AdoptRemote
}
