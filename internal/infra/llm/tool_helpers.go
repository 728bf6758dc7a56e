package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

var validToolNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func isValidToolName(name string) bool {
	return validToolNamePattern.MatchString(strings.TrimSpace(name))
}

func normalizeToolSchema(schema ports.ParameterSchema) ports.ParameterSchema {
	normalized := schema
	if strings.TrimSpace(normalized.Type) == "" {
		normalized.Type = "object"
	}
	if normalized.Properties == nil {
		normalized.Properties = map[string]ports.Property{}
	}
	return normalized
}

// parseToolArguments decodes streamed tool arguments, repairing the
// truncated or sloppy JSON some models produce.
func parseToolArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	err := json.Unmarshal([]byte(raw), &args)
	if err == nil {
		return args, nil
	}
	fixed, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fixed), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func marshalArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// imageURL renders an image attachment as something a provider accepts in an
// image_url field.
func imageURL(att ports.Attachment) string {
	payload := strings.TrimSpace(att.Base64)
	if strings.HasPrefix(payload, "data:") || strings.HasPrefix(payload, "http://") || strings.HasPrefix(payload, "https://") {
		return payload
	}
	return "data:" + mediaTypeOrDefault(att.MediaType) + ";base64," + payload
}

// rawImage splits an image attachment into media type and bare base64 data.
func rawImage(att ports.Attachment) (mediaType, data string) {
	mediaType, data, ok := parseDataURL(att.Base64)
	if ok {
		return mediaType, data
	}
	return mediaTypeOrDefault(att.MediaType), strings.TrimSpace(att.Base64)
}

func parseDataURL(value string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(value), "data:")
	if !found {
		return "", "", false
	}
	header, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, _, _ = strings.Cut(header, ";")
	return mediaTypeOrDefault(mediaType), payload, true
}

func mediaTypeOrDefault(mediaType string) string {
	if strings.TrimSpace(mediaType) == "" {
		return "image/png"
	}
	return mediaType
}

// imageFromURL turns a provider-returned image URL into an attachment.
func imageFromURL(url string) ports.Attachment {
	if mediaType, data, ok := parseDataURL(url); ok {
		return ports.ImageAttachment(data, mediaType)
	}
	return ports.ImageAttachment(url, "")
}
