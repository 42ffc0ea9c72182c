package proposal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var pdfBytes = []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

func TestValidateAttachment_ValidPDF(t *testing.T) {
	require.Empty(t, ValidateAttachment("proposal.pdf", pdfBytes, 0))
}

func TestValidateAttachment_SniffsContentNotName(t *testing.T) {
	problems := ValidateAttachment("proposal.pdf", []byte("<html><body>hi</body></html>"), 0)
	require.Contains(t, problems, "file")
}

func TestValidateAttachment_Empty(t *testing.T) {
	problems := ValidateAttachment("proposal.pdf", nil, 0)
	require.Contains(t, problems, "file")
}

func TestValidateAttachment_MissingName(t *testing.T) {
	problems := ValidateAttachment("", pdfBytes, 0)
	require.Contains(t, problems, "file_name")
}

func TestValidateAttachment_LimitReached(t *testing.T) {
	problems := ValidateAttachment("proposal.pdf", pdfBytes, MaxAttachments)
	require.Contains(t, problems, "attachments")
}
