// Package workspace implements the project tree root.
//
// The Root owns every open project as a child of the workspace tree and
// guarantees that at most one live project exists per document path and
// per project id.
//
// Operations:
//
//   - OpenFromFile: path check, load, id check, select
//   - Checkout: stub project, version control set up for clone, clone
//   - CreateEmpty, CreateEmptyNamed, CreateExample: essentials, template
//     bootstrap, select
//   - ImportExternal: essentials, importer, select
//   - CloseProject: save, detach, free
//
// Every operation either returns a new live project or a sentinel error
// (ErrAlreadyOpen, ErrFileNotFound, ErrLoadFailed, ErrEmptyProjectID,
// ErrImportFailed) with the tree unchanged. On ErrAlreadyOpen the existing
// project's first piano track is selected again.
//
// Essentials:
//
// A new project gets a version-control child whose first commit holds the
// project info only, then a pattern-editor child. Template content is
// added after that, so the first commit never contains tracks.
//
// Concurrency:
//
// Root is driven from a single goroutine. Session wraps it with a mutex
// for the HTTP API and the documents watcher, and adds autosave, autoload
// and recent projects on top of a Store.
package workspace
