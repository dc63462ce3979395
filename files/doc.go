// Package files resolves files:// resource identifiers against a confined
// root directory.
//
// Identifiers are slash-separated paths relative to the root ("." is the
// root itself). Every identifier is cleaned and checked against the root
// before the filesystem is touched; after that the symlink-resolved path is
// checked again. Paths that leave the root fail with protocol.ErrAccessDenied.
//
// The resolver only ever opens files for reading.
package files
