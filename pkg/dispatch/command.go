package dispatch

import "strings"

type Kind uint

const (
	KindPayload Kind = iota
	KindExit
	KindPing
)

const (
	ExitLine = "exit"
	PingLine = "ping"

	// escapePrefix forces the rest of the line to be read as payload,
	// so "\exit" delivers the text "exit" to handlers.
	escapePrefix = `\`
)

func (k Kind) String() string {
	switch k {
	case KindPayload:
		return "payload"
	case KindExit:
		return "exit"
	case KindPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Command is one line received from a Source.
type Command struct {
	Kind Kind
	Text string
}

// Parse classifies a raw line. A single trailing line terminator is removed.
func Parse(line string) Command {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	switch line {
	case ExitLine:
		return Command{Kind: KindExit, Text: line}
	case PingLine:
		return Command{Kind: KindPing, Text: line}
	}

	if strings.HasPrefix(line, escapePrefix) {
		return Command{Kind: KindPayload, Text: line[len(escapePrefix):]}
	}

	return Command{Kind: KindPayload, Text: line}
}

// Escape is the inverse of Parse for payloads: the returned line always
// parses back to a payload carrying text.
func Escape(text string) string {
	if text == ExitLine || text == PingLine || strings.HasPrefix(text, escapePrefix) {
		return escapePrefix + text
	}
	return text
}
