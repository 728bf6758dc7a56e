package attachments

import "github.com/chiyuki0325/Memoh/internal/domain/agent/ports"

// StripMessages returns copies of msgs with every directive block removed from
// their content, plus the attachments found in the blocks merged with the
// ones the messages carried out-of-band. The input slice is not modified.
func StripMessages(msgs []ports.Message) ([]ports.Message, []ports.Attachment) {
	if len(msgs) == 0 {
		return nil, nil
	}
	stripped := make([]ports.Message, 0, len(msgs))
	var fromText, fromMessages []ports.Attachment
	for _, msg := range msgs {
		clean := msg.Clone()
		if Contains(msg.Content) {
			text, found := Extract(msg.Content)
			clean.Content = text
			fromText = append(fromText, found...)
		}
		fromMessages = append(fromMessages, msg.Attachments...)
		stripped = append(stripped, clean)
	}
	return stripped, Merge(fromText, fromMessages)
}
