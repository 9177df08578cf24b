// Package userstore defines the remote RPC surface for the single
// account-wide user-store endpoint.
package userstore

import "context"

// User is the subset of EDAM user data the engine needs.
type User struct {
	ID       int32
	Username string
	Email    string
}

// Store is the user-store RPC surface.
type Store interface {
	CheckVersion(ctx context.Context, clientName string, edamVersionMajor, edamVersionMinor int16) (bool, error)
	GetUser(ctx context.Context, authToken string) (User, error)
}
