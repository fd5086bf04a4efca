package router

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	kit "diarybot/internal/transport"
)

// sanitizeCommand turns a name into a Telegram command: [a-z0-9_]{1,32},
// starting with a letter.
func sanitizeCommand(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == '/' || unicode.IsSpace(r):
			if b.Len() > 0 && !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

func (m *CommandManager) menu() []kit.BotCommand {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(m.order))
	for _, c := range m.order {
		if c.Hidden || c.Access == AccessAdmin {
			continue
		}
		name := sanitizeCommand(c.Name)
		if name == "" {
			continue
		}
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if r := []rune(desc); len(r) > 256 {
			desc = string(r[:256])
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
	}
	return out
}

// HelpText lists the commands the user can run.
func (m *CommandManager) HelpText(userID int64) string {
	admin := m.isAdmin(userID)
	m.mu.RLock()
	cmds := append([]*Command(nil), m.order...)
	m.mu.RUnlock()
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Access < cmds[j].Access })

	var b strings.Builder
	b.WriteString("📖 Команды:\n")
	for _, c := range cmds {
		if c.Hidden || (c.Access == AccessAdmin && !admin) {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		fmt.Fprintf(&b, "\n%s - %s", usage, c.Description)
	}
	return b.String()
}
