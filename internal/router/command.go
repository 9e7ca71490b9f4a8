package router

import (
	"regexp"
	"strings"
)

// Command is a parsed trigger extracted from an inbound direct message.
type Command struct {
	Keyword    string // the trigger word that matched
	Collection string // worksheet name to dispatch
}

// commandRe matches the bracketed trigger forms the bot accepts:
// [스토리/이름], [스진/이름] and [스토리진행/이름]. The longest keyword is
// listed first so the alternation never stops at a prefix.
var commandRe = regexp.MustCompile(`\[(스토리진행|스토리|스진)/([^\]]+)\]`)

// ParseCommand scans a message body for a trigger command. The worksheet
// name is trimmed; a name that is blank after trimming does not count as
// a command.
func ParseCommand(text string) (Command, bool) {
	match := commandRe.FindStringSubmatch(text)
	if match == nil {
		return Command{}, false
	}
	name := strings.TrimSpace(match[2])
	if name == "" {
		return Command{}, false
	}
	return Command{Keyword: match[1], Collection: name}, true
}
