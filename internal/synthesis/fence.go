package synthesis

import "strings"

var fenceLanguages = []string{"markdown", "md", "html"}

// stripFence unwraps a reply the model put inside a ``` block, dropping the
// info string when it names a document language.
func stripFence(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		info := strings.TrimSpace(body[:newline])
		for _, lang := range fenceLanguages {
			if strings.EqualFold(info, lang) {
				body = body[newline+1:]
				break
			}
		}
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
