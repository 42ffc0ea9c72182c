package proposal

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// Client-facing proposals carry at most one attachment.
	MaxAttachments = 1

	MaxAttachmentSizeBytes = 10 << 20

	attachmentMIME = "application/pdf"
)

// ValidateAttachment checks an attachment payload before it is handed to the
// storage collaborator. Content type is sniffed from the bytes, not taken
// from the file name.
func ValidateAttachment(fileName string, data []byte, existingCount int) map[string]string {
	problems := map[string]string{}

	if fileName == "" {
		problems["file_name"] = "file_name is required"
	}
	if existingCount >= MaxAttachments {
		problems["attachments"] = fmt.Sprintf("a proposal can have at most %d attachment", MaxAttachments)
	}
	if int64(len(data)) > MaxAttachmentSizeBytes {
		problems["file"] = "attachment exceeds 10MB"
	}
	if len(data) == 0 {
		problems["file"] = "attachment is empty"
	} else if !mimetype.Detect(data).Is(attachmentMIME) {
		problems["file"] = fmt.Sprintf("attachment must be %s", attachmentMIME)
	}

	return problems
}
