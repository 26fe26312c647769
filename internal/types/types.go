// Package types holds the data model shared across pipeline stages.
package types

import (
	"strings"
	"time"
)

// ContentKind classifies inbound media. Documents are resolved to an
// audio or video kind through their MIME type before normalization.
type ContentKind string

const (
	ContentVoice     ContentKind = "voice"
	ContentVideo     ContentKind = "video"
	ContentAudio     ContentKind = "audio"
	ContentVideoNote ContentKind = "video_note"
	ContentDocument  ContentKind = "document"
)

// MediaDescriptor describes one inbound media item. It is created by the
// transport layer and consumed exactly once by a pipeline invocation.
type MediaDescriptor struct {
	ContentKind     ContentKind `json:"content_kind"`
	MimeType        string      `json:"mime_type,omitempty"`
	ByteSize        int64       `json:"byte_size"`
	SourceHandle    string      `json:"source_handle"`
	DurationSeconds int         `json:"duration_seconds,omitempty"`
	RequesterID     string      `json:"requester_id"`
}

// HasVideoStream reports whether the descriptor carries a video stream
// that must be demuxed before fingerprinting.
func (d MediaDescriptor) HasVideoStream() bool {
	switch d.ContentKind {
	case ContentVideo, ContentVideoNote:
		return true
	case ContentDocument:
		return strings.HasPrefix(d.MimeType, "video/")
	default:
		return false
	}
}

// NormalizedClip is the bounded audio excerpt prepared for recognition.
// The pipeline invocation owns the file and removes it on every exit path.
type NormalizedClip struct {
	FilePath        string `json:"file_path"`
	SampleRate      int    `json:"sample_rate"`
	ChannelCount    int    `json:"channel_count"`
	DurationSeconds int    `json:"duration_seconds"`
	Format          string `json:"format"`
}

// TrackIdentity is a recognized track. A nil identity means "no match".
type TrackIdentity struct {
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	ExternalMatchID string  `json:"external_match_id,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
	ArtworkURL      string  `json:"artwork_url,omitempty"`
}

// Query returns the free-text search query for this identity.
func (t TrackIdentity) Query() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " " + t.Title
}

// ResolutionMethod records which path produced a source reference.
type ResolutionMethod string

const (
	ResolutionPrimaryAPI         ResolutionMethod = "primary_api"
	ResolutionFallbackExtraction ResolutionMethod = "fallback_extraction"
)

// SourceReference points at a playable source on the download provider.
type SourceReference struct {
	ProviderTrackID  string           `json:"provider_track_id"`
	DurationSeconds  int              `json:"duration_seconds,omitempty"`
	ResolutionMethod ResolutionMethod `json:"resolution_method"`
}

// DownloadArtifact is the acquired audio. The caller takes ownership of
// the file on success.
type DownloadArtifact struct {
	FilePath        string `json:"file_path"`
	ArtworkPath     string `json:"artwork_path,omitempty"`
	Codec           string `json:"codec"`
	DurationSeconds int    `json:"duration_seconds"`
	SizeBytes       int64  `json:"size_bytes"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
}

// ReachabilityState is the delivery gate state for one requester.
type ReachabilityState string

const (
	ReachabilityActive  ReachabilityState = "active"
	ReachabilityBlocked ReachabilityState = "blocked"
)

// MembershipStatus is a raw membership event value from the transport.
type MembershipStatus string

const (
	StatusMember MembershipStatus = "member"
	StatusKicked MembershipStatus = "kicked"
	StatusLeft   MembershipStatus = "left"
)

// PipelineResult is what a completed invocation hands back to the caller.
type PipelineResult struct {
	RequestID  string            `json:"request_id"`
	Identity   *TrackIdentity    `json:"identity,omitempty"`
	Source     *SourceReference  `json:"source,omitempty"`
	Artifact   *DownloadArtifact `json:"artifact,omitempty"`
	FromCache  bool              `json:"from_cache"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}
