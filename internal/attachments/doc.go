// Package attachments recognizes and removes the attachment directive that a
// model may embed in its generated text:
//
//	<attachments>
//	- /path/to/file.pdf
//	</attachments>
//
// Extract is the batch form over a complete string. Extractor consumes the
// same text as a sequence of deltas and produces the same result for any
// partition of the input.
package attachments
