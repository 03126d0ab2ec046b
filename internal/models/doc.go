// Package models defines the canonical schema that every provider adapter normalizes into.
//
// The package contains three groups of types:
//
// 1. Canonical records, produced fresh by each merge:
//   - [CanonicalTrackRecord] : merged track with attribution, conflicts and warnings
//   - [CanonicalAlbumRecord] : merged album with an ordered tracklist
//
// 2. Provider output, created by exactly one adapter call and consumed by one merge:
//   - [Fragment] : partial track record tagged with its service and priority weight
//   - [AlbumFragment] : partial album record
//   - [LyricsPayload] : plain and/or synced lyrics
//   - [DownloadURL] : signed, expiring download location
//
// 3. Request and credential types:
//   - [Query], [Identifier], [Candidate] : what to look up and search hits
//   - [CredentialToken] : opaque per-service secret with optional expiry
//
// [Model] and [Repository] describe persisted entities; see the repositories package.
package models
