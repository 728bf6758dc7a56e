package ports

// AttachmentType discriminates the Attachment variants.
type AttachmentType string

const (
	AttachmentFile  AttachmentType = "file"
	AttachmentImage AttachmentType = "image"
)

// Attachment is either a file path in the agent workspace or an inline image.
// Values are immutable once created.
type Attachment struct {
	Type      AttachmentType `json:"type"`
	Path      string         `json:"path,omitempty"`
	Base64    string         `json:"base64,omitempty"`
	MediaType string         `json:"mediaType,omitempty"`
}

// FileAttachment builds a file attachment.
func FileAttachment(path string) Attachment {
	return Attachment{Type: AttachmentFile, Path: path}
}

// ImageAttachment builds an inline image attachment from an encoded payload.
func ImageAttachment(payload, mediaType string) Attachment {
	return Attachment{Type: AttachmentImage, Base64: payload, MediaType: mediaType}
}

// Key returns the identity of the attachment: the path for files and the
// payload for images. Media type does not participate.
func (a Attachment) Key() string {
	switch a.Type {
	case AttachmentImage:
		return "image:" + a.Base64
	default:
		return "file:" + a.Path
	}
}

// FilePaths returns the paths of the file attachments in order.
func FilePaths(attachments []Attachment) []string {
	var paths []string
	for _, att := range attachments {
		if att.Type == AttachmentFile && att.Path != "" {
			paths = append(paths, att.Path)
		}
	}
	return paths
}

// Images returns the image attachments in order.
func Images(attachments []Attachment) []Attachment {
	var images []Attachment
	for _, att := range attachments {
		if att.Type == AttachmentImage {
			images = append(images, att)
		}
	}
	return images
}
