package common

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const dataURLPrefix = "data:"

// EncodeDataURL embeds data in a base64 data URL, sniffing its MIME type from the content.
func EncodeDataURL(data []byte) string {
	mime := mimetype.Detect(data).String()
	// drop parameters such as "; charset=utf-8" so the header stays "<type>;base64"
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return dataURLPrefix + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL returns the payload of a base64 data URL and its MIME type.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	if !strings.HasPrefix(dataURL, dataURLPrefix) {
		return nil, "", fmt.Errorf("not a data URL")
	}
	header, payload, found := strings.Cut(dataURL[len(dataURLPrefix):], ",")
	if !found {
		return nil, "", fmt.Errorf("data URL has no payload separator")
	}

	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("only base64 data URLs are supported")
	}
	if mime == "" {
		mime = "text/plain"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode data URL payload: %w", err)
	}
	return data, mime, nil
}
