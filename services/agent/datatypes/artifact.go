// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// PrimaryFile is the artifact entry that must always be present.
// Round >1 revisions read this file back as prior context, and hosting
// serves it as the site root.
const PrimaryFile = "index.html"

// ArtifactFile is one named file within an artifact.
type ArtifactFile struct {
	Path    string
	Content string
}

// Artifact is the generated deliverable for one attempt: an ordered set of
// complete file contents, never diffs. Order matters because the first
// entry initializes an empty repository before any update-style write.
//
// The zero value is empty and invalid; generators must guarantee at least
// the primary file is present, even on failure.
type Artifact struct {
	files []ArtifactFile
}

// NewArtifact builds an artifact from the given files, preserving order.
func NewArtifact(files ...ArtifactFile) *Artifact {
	a := &Artifact{}
	for _, f := range files {
		a.Put(f.Path, f.Content)
	}
	return a
}

// Put adds or replaces a file, keeping the original insertion position
// on replace.
func (a *Artifact) Put(path, content string) {
	for i := range a.files {
		if a.files[i].Path == path {
			a.files[i].Content = content
			return
		}
	}
	a.files = append(a.files, ArtifactFile{Path: path, Content: content})
}

// Get returns the content of path and whether it exists.
func (a *Artifact) Get(path string) (string, bool) {
	for _, f := range a.files {
		if f.Path == path {
			return f.Content, true
		}
	}
	return "", false
}

// Files returns the entries in insertion order. The returned slice is a
// copy; mutating it does not affect the artifact.
func (a *Artifact) Files() []ArtifactFile {
	out := make([]ArtifactFile, len(a.files))
	copy(out, a.files)
	return out
}

// Len returns the number of files.
func (a *Artifact) Len() int {
	return len(a.files)
}

// HasPrimary reports whether the designated primary file is present.
func (a *Artifact) HasPrimary() bool {
	_, ok := a.Get(PrimaryFile)
	return ok
}

// PublishResult identifies what a publish call produced. Immutable.
type PublishResult struct {
	// Owner is the repository owner (user or org) on the hosting provider.
	Owner string

	// Repo is the repository (collection) name.
	Repo string

	// RepoURL is the public browse URL of the repository.
	RepoURL string

	// CommitSHA is the content-addressed revision id of the publish.
	CommitSHA string
}

// NotificationPayload is the read-only projection of Task + PublishResult
// delivered to the evaluation endpoint.
type NotificationPayload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}
