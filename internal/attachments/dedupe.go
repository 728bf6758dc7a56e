package attachments

import "github.com/chiyuki0325/Memoh/internal/domain/agent/ports"

// Merge concatenates the given lists and drops later duplicates, keeping the
// first occurrence of every attachment in place. Files are equal when their
// paths are equal, images when their payloads are byte-identical.
func Merge(lists ...[]ports.Attachment) []ports.Attachment {
	total := 0
	for _, list := range lists {
		total += len(list)
	}
	if total == 0 {
		return nil
	}
	seen := make(map[string]struct{}, total)
	out := make([]ports.Attachment, 0, total)
	for _, list := range lists {
		for _, att := range list {
			key := att.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, att)
		}
	}
	return out
}

// Dedupe removes later duplicates from one list.
func Dedupe(list []ports.Attachment) []ports.Attachment {
	return Merge(list)
}
