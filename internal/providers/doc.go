// Package providers defines the adapter contract for music services.
//
// An adapter implements [Adapter] plus one or more capability interfaces:
//   - [MetadataLookup] : search candidates and fetch track fragments
//   - [LyricsLookup] : plain and synced lyrics
//   - [DownloadResolution] : signed download URLs
//   - [AlbumLookup] : album fragments with tracklists
//
// Failures are reported by wrapping the sentinels in the shared package
// (ErrNotFound, ErrRateLimited, ErrAuthFailed, ErrNotEntitled, ErrTimeout, ErrTransient);
// anything else is a plugin error. [Classify] maps an error to its [Kind].
//
// Concrete adapters live in the subpackages spotify, musicbrainz, lrclib, qobuz and lastfm.
package providers
