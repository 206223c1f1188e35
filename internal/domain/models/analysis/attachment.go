package analysis

import (
	"fmt"
	"strings"
)

// AttachmentKind is the closed set of attachment variants
type AttachmentKind string

const (
	AttachmentKindFile  AttachmentKind = "file"
	AttachmentKindURL   AttachmentKind = "url"
	AttachmentKindImage AttachmentKind = "image"
)

// AttachmentStatus tracks the ingestion lifecycle of an attachment.
// uploading -> processing -> uploaded|error; uploaded and error are terminal.
type AttachmentStatus string

const (
	AttachmentStatusUploading  AttachmentStatus = "uploading"
	AttachmentStatusProcessing AttachmentStatus = "processing"
	AttachmentStatusUploaded   AttachmentStatus = "uploaded"
	AttachmentStatusError      AttachmentStatus = "error"
)

// IsTerminal reports whether no further transition is possible
func (s AttachmentStatus) IsTerminal() bool {
	return s == AttachmentStatusUploaded || s == AttachmentStatusError
}

// IsPending reports whether ingestion is still in flight
func (s AttachmentStatus) IsPending() bool {
	return s == AttachmentStatusUploading || s == AttachmentStatusProcessing
}

func (s AttachmentStatus) rank() int {
	switch s {
	case AttachmentStatusUploading:
		return 0
	case AttachmentStatusProcessing:
		return 1
	default:
		return 2
	}
}

// ScreenshotResult is the outcome of capturing one viewport of a URL
type ScreenshotResult struct {
	Success       bool   `json:"success"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ScreenshotSet holds per-viewport capture results for a URL attachment
type ScreenshotSet struct {
	Desktop *ScreenshotResult `json:"desktop,omitempty"`
	Mobile  *ScreenshotResult `json:"mobile,omitempty"`
}

// FailedScreenshots returns a set where every requested viewport failed with msg
func FailedScreenshots(msg string) *ScreenshotSet {
	return &ScreenshotSet{
		Desktop: &ScreenshotResult{Success: false, Error: msg},
		Mobile:  &ScreenshotResult{Success: false, Error: msg},
	}
}

// AttachmentMetadata carries optional per-kind details
type AttachmentMetadata struct {
	ContentType string                 `json:"content_type,omitempty"`
	Size        int64                  `json:"size,omitempty"`
	Screenshots *ScreenshotSet         `json:"screenshots,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

func (m *AttachmentMetadata) clone() *AttachmentMetadata {
	if m == nil {
		return nil
	}
	out := *m
	if m.Screenshots != nil {
		set := ScreenshotSet{}
		if m.Screenshots.Desktop != nil {
			d := *m.Screenshots.Desktop
			set.Desktop = &d
		}
		if m.Screenshots.Mobile != nil {
			mob := *m.Screenshots.Mobile
			set.Mobile = &mob
		}
		out.Screenshots = &set
	}
	if m.Extra != nil {
		out.Extra = make(map[string]interface{}, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// Attachment is a file, image or URL supplied as analysis input.
// Kind and Name are fixed at construction; only Status, Error, URL, Path and
// Metadata change while ingestion resolves.
type Attachment struct {
	ID       string              `json:"id"`
	Kind     AttachmentKind      `json:"kind"`
	Name     string              `json:"name"`
	URL      string              `json:"url,omitempty"`  // remote URL (public object URL or the analysed page)
	Path     string              `json:"path,omitempty"` // storage path once uploaded
	Status   AttachmentStatus    `json:"status"`
	Error    string              `json:"error,omitempty"`
	Metadata *AttachmentMetadata `json:"metadata,omitempty"`
}

// NewFileAttachment creates a non-image file attachment in uploading state
func NewFileAttachment(id, name, contentType string, size int64) (*Attachment, error) {
	return newUploadAttachment(id, AttachmentKindFile, name, contentType, size)
}

// NewImageAttachment creates an image attachment in uploading state
func NewImageAttachment(id, name, contentType string, size int64) (*Attachment, error) {
	return newUploadAttachment(id, AttachmentKindImage, name, contentType, size)
}

func newUploadAttachment(id string, kind AttachmentKind, name, contentType string, size int64) (*Attachment, error) {
	if id == "" {
		return nil, fmt.Errorf("attachment id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("attachment name is required")
	}
	return &Attachment{
		ID:     id,
		Kind:   kind,
		Name:   name,
		Status: AttachmentStatusUploading,
		Metadata: &AttachmentMetadata{
			ContentType: contentType,
			Size:        size,
		},
	}, nil
}

// NewURLAttachment creates a URL attachment in processing state.
// The URL must already be normalised; it doubles as the display name.
func NewURLAttachment(id, normalizedURL string) (*Attachment, error) {
	if id == "" {
		return nil, fmt.Errorf("attachment id is required")
	}
	if normalizedURL == "" {
		return nil, fmt.Errorf("attachment url is required")
	}
	return &Attachment{
		ID:     id,
		Kind:   AttachmentKindURL,
		Name:   normalizedURL,
		URL:    normalizedURL,
		Status: AttachmentStatusProcessing,
	}, nil
}

// Transition moves the attachment to next, refusing backward moves and any
// move out of a terminal state.
func (a *Attachment) Transition(next AttachmentStatus) error {
	if a.Status.IsTerminal() {
		return fmt.Errorf("attachment %s already %s", a.ID, a.Status)
	}
	if next.rank() < a.Status.rank() {
		return fmt.Errorf("attachment %s cannot move from %s to %s", a.ID, a.Status, next)
	}
	a.Status = next
	return nil
}

// Fail moves the attachment to the error state with msg
func (a *Attachment) Fail(msg string) error {
	if err := a.Transition(AttachmentStatusError); err != nil {
		return err
	}
	a.Error = msg
	return nil
}

// Clone returns a deep copy so messages own their attachments by value
func (a Attachment) Clone() Attachment {
	a.Metadata = a.Metadata.clone()
	return a
}

// CloneAttachments deep-copies a slice of attachments
func CloneAttachments(in []Attachment) []Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]Attachment, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// AttachmentRef is the reduced form of an attachment sent to the analyzer
type AttachmentRef struct {
	ID       string              `json:"id"`
	Kind     AttachmentKind      `json:"type"`
	Name     string              `json:"name"`
	Location string              `json:"url,omitempty"`
	Path     string              `json:"path,omitempty"`
	Metadata *AttachmentMetadata `json:"metadata,omitempty"`
}

// Ref reduces the attachment to the fields the analyzer needs
func (a Attachment) Ref() AttachmentRef {
	return AttachmentRef{
		ID:       a.ID,
		Kind:     a.Kind,
		Name:     a.Name,
		Location: a.URL,
		Path:     a.Path,
		Metadata: a.Metadata.clone(),
	}
}
