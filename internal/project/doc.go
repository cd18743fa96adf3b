// Package project implements a single project of the workspace.
//
// Project Representation:
//
// Each project carries:
//   - Stable project ID (UUID unless loaded or checked out)
//   - Display name
//   - Document handle (on-disk location, may be empty)
//   - Metadata and timeline (annotations, key and time signatures)
//   - Piano and automation tracks
//
// Essential Subsystems:
//
// A fully initialized project has exactly one of each as a tree child:
//   - Version control (vcs.Repository, seeded with a project info commit)
//   - Pattern editor (arrangement view state)
//
// Tree Ownership:
//
// A Project owns a subtree of the workspace arena. The arena records the
// structure (which tracks exist and in what order); the Project keeps the
// content behind each node. Freeing the project node frees the subtree.
//
// Notifications:
//
// Content changes are announced on the events bus in a fixed order:
// reload_project_content, change_project_beat_range (only when the range
// moved), change_view_beat_range.
package project
