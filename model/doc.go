// Package model defines the small shared types exchanged between the public
// API, the engine and the index.
package model
