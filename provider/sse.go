package provider

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// extractFunc pulls the text delta out of one SSE event payload. The second
// return is false for events that carry no text (keep-alives, stop frames).
type extractFunc func(data []byte) (string, bool)

// pipeSSE decodes a server-sent-events body and exposes the concatenated
// text deltas as an incremental reader. Decode errors end the stream; the
// consumer treats a short stream as a truncated burst, which it handles
// anyway.
func pipeSSE(body io.ReadCloser, extract extractFunc) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			data := bytes.TrimSpace(line[len("data:"):])
			if len(data) == 0 || string(data) == "[DONE]" {
				continue
			}
			text, ok := extract(data)
			if !ok || text == "" {
				continue
			}
			if _, err := pw.Write([]byte(text)); err != nil {
				return // reader side closed
			}
		}
		pw.CloseWithError(scanner.Err())
	}()

	return pr
}

// stripCodeFence removes a wrapping markdown code fence from a complete
// response. Models regularly wrap JSON in ```json ... ``` despite being
// told not to.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:] // drop the language tag line
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
