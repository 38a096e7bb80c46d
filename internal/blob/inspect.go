package blob

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const sniffLen = 3072

type inspected struct {
	MimeType  string
	Extension string
	SizeBytes int64
}

// inspectImage checks an upload on disk before it is handed to a backend:
// size limit, executable signatures, then an image/* content type.
func inspectImage(path string, maxBytes int64) (*inspected, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading upload info: %w", err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, ErrFileTooLarge
	}

	sniff := make([]byte, sniffLen)
	n, err := io.ReadFull(f, sniff)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	sniff = sniff[:n]

	if isExecutableSignature(sniff) {
		return nil, ErrExecutableFile
	}

	mime := mimetype.Detect(sniff)
	if !isAllowedImageType(mime.String()) {
		return nil, ErrDisallowedType
	}

	return &inspected{
		MimeType:  trimMimeParams(mime.String()),
		Extension: mime.Extension(),
		SizeBytes: info.Size(),
	}, nil
}

func isExecutableSignature(sniff []byte) bool {
	if len(sniff) < 2 {
		return false
	}

	if sniff[0] == 'M' && sniff[1] == 'Z' {
		return true // PE/COFF
	}
	if sniff[0] == '#' && sniff[1] == '!' {
		return true // shebang
	}
	if len(sniff) < 4 {
		return false
	}

	magics := [][]byte{
		{0x7f, 'E', 'L', 'F'},
		{0xfe, 0xed, 0xfa, 0xce},
		{0xce, 0xfa, 0xed, 0xfe},
		{0xfe, 0xed, 0xfa, 0xcf},
		{0xcf, 0xfa, 0xed, 0xfe},
		{0xca, 0xfe, 0xba, 0xbe},
		{0xbe, 0xba, 0xfe, 0xca},
	}
	for _, magic := range magics {
		if bytes.Equal(sniff[:4], magic) {
			return true
		}
	}
	return false
}

func trimMimeParams(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		return strings.TrimSpace(contentType[:idx])
	}
	return strings.TrimSpace(contentType)
}

func isAllowedImageType(mimeType string) bool {
	mimeType = strings.ToLower(trimMimeParams(mimeType))
	if mimeType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mimeType, "image/")
}
