package domain

import (
	"errors"
	"math"
	"time"
)

type ListStatus string

const (
	ListCurrent   ListStatus = "CURRENT"
	ListPlanning  ListStatus = "PLANNING"
	ListCompleted ListStatus = "COMPLETED"
	ListDropped   ListStatus = "DROPPED"
	ListPaused    ListStatus = "PAUSED"
	ListRepeating ListStatus = "REPEATING"
)

func (s ListStatus) Valid() bool {
	switch s {
	case ListCurrent, ListPlanning, ListCompleted, ListDropped, ListPaused, ListRepeating:
		return true
	default:
		return false
	}
}

type SyncState string

const (
	SyncClean      SyncState = "CLEAN"
	SyncDirty      SyncState = "DIRTY"
	SyncConflicted SyncState = "CONFLICTED"
)

// ListEntry est la relation de l'utilisateur à un média.
//
// LocalID est attribué à la première écriture locale; RemoteID vaut 0 tant que
// le serveur n'a pas renvoyé son propre identifiant. UpdatedAtRemote est la
// dernière version serveur connue: pour une entrée DIRTY c'est la base de
// comparaison pour détecter un conflit.
type ListEntry struct {
	LocalID  int64
	MediaID  int
	RemoteID int

	Status   ListStatus
	Score    *float64
	Progress int

	UpdatedAtLocal  time.Time
	UpdatedAtRemote time.Time

	SyncState SyncState
}

func (e ListEntry) HasRemoteID() bool { return e.RemoteID > 0 }

// SameContent compare les champs visibles par l'utilisateur.
func (e ListEntry) SameContent(o ListEntry) bool {
	if e.MediaID != o.MediaID || e.Status != o.Status || e.Progress != o.Progress {
		return false
	}
	switch {
	case e.Score == nil && o.Score == nil:
		return true
	case e.Score == nil || o.Score == nil:
		return false
	default:
		return math.Abs(*e.Score-*o.Score) < 1e-9
	}
}

var (
	ErrInvalidSyncTransition = errors.New("invalid list entry sync transition")
	ErrInvalidListEntry      = errors.New("invalid list entry")
)

// CanTransitionSync décrit les transitions autorisées de sync_state.
// CLEAN -> CLEAN couvre l'écrasement par une version distante plus récente.
func CanTransitionSync(from, to SyncState) bool {
	switch from {
	case SyncClean:
		return to == SyncClean || to == SyncDirty
	case SyncDirty:
		return to == SyncDirty || to == SyncClean || to == SyncConflicted
	case SyncConflicted:
		// Sortie uniquement par une résolution explicite.
		return to == SyncConflicted || to == SyncDirty || to == SyncClean
	default:
		return false
	}
}

// Validate vérifie la cohérence entre sync_state et les autres champs.
func (e ListEntry) Validate() error {
	if e.MediaID <= 0 || !e.Status.Valid() || e.Progress < 0 {
		return ErrInvalidListEntry
	}
	switch e.SyncState {
	case SyncClean:
		if !e.HasRemoteID() || e.UpdatedAtRemote.IsZero() {
			return ErrInvalidListEntry
		}
	case SyncDirty:
		if e.UpdatedAtLocal.IsZero() {
			return ErrInvalidListEntry
		}
	case SyncConflicted:
	default:
		return ErrInvalidListEntry
	}
	return nil
}

// PushResult est ce que le serveur renvoie après SaveMediaListEntry.
type PushResult struct {
	RemoteID        int
	UpdatedAtRemote time.Time
}
