// Package db assembles the persistence adapters into a ports.SessionStore.
package db

import "github.com/projectcamp/auth-service/internal/core/ports"

// Store pairs a principal repository with a session repository, which may
// live in different backends.
type Store struct {
	ports.PrincipalRepository
	ports.SessionRepository
}

var _ ports.SessionStore = Store{}

func NewStore(principals ports.PrincipalRepository, sessions ports.SessionRepository) Store {
	return Store{PrincipalRepository: principals, SessionRepository: sessions}
}
