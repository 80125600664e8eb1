// Package storage declares persistence interfaces for web-owned session data.
//
// Everything stored here is derived from the platform API and can be
// discarded and rebuilt from it.
package storage
