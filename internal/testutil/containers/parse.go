package containers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// NtfyMessage is one message event from an ntfy topic.
type NtfyMessage struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Topic   string `json:"topic"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Time    int64  `json:"time"`
}

// ParseNtfyMessages decodes ntfy's newline-delimited JSON, keeping only
// message events.
func ParseNtfyMessages(body []byte) ([]NtfyMessage, error) {
	var out []NtfyMessage
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var m NtfyMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("decoding ntfy message: %w", err)
		}
		if m.Event != "" && m.Event != "message" {
			continue
		}
		out = append(out, m)
	}
	return out, sc.Err()
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$]*$`)

// truncateStatements builds the statements that empty tables. Every name must
// be a plain MySQL identifier.
func truncateStatements(tables []string) ([]string, error) {
	stmts := make([]string, 0, len(tables)+2)
	stmts = append(stmts, "SET FOREIGN_KEY_CHECKS = 0")
	for _, t := range tables {
		if !identifierRe.MatchString(t) {
			return nil, fmt.Errorf("invalid table name %q", t)
		}
		stmts = append(stmts, "TRUNCATE TABLE `"+t+"`")
	}
	return append(stmts, "SET FOREIGN_KEY_CHECKS = 1"), nil
}
