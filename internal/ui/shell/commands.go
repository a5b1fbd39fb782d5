// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// Command names.
const (
	CmdNew      = "new"
	CmdSwitch   = "switch"
	CmdDelete   = "delete"
	CmdUpload   = "upload"
	CmdClear    = "clear"
	CmdHealth   = "health"
	CmdSessions = "sessions"
	CmdInfo     = "info"
	CmdHelp     = "help"
	CmdQuit     = "quit"
)

// ErrUnknownCommand is wrapped by ParseCommand for names it does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a parsed slash command.
type Command struct {
	Name string
	Arg  string
}

type commandDef struct {
	name     string
	aliases  []string
	args     string
	needsArg bool
	desc     string
}

var commandDefs = []commandDef{
	{name: CmdNew, aliases: []string{"n"}, desc: "start a new chat"},
	{name: CmdSwitch, aliases: []string{"s"}, args: "N|ID", needsArg: true, desc: "switch chat"},
	{name: CmdDelete, aliases: []string{"rm"}, args: "[N|ID]", desc: "delete a chat"},
	{name: CmdUpload, aliases: []string{"u"}, args: "PATH", needsArg: true, desc: "upload a document"},
	{name: CmdClear, desc: "remove all documents"},
	{name: CmdHealth, desc: "check the service"},
	{name: CmdSessions, aliases: []string{"ls"}, desc: "reload the chat list"},
	{name: CmdInfo, desc: "document summary"},
	{name: CmdHelp, aliases: []string{"?"}, desc: "toggle help"},
	{name: CmdQuit, aliases: []string{"q", "exit"}, desc: "exit"},
}

// IsCommand reports whether input is a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// ParseCommand parses "/name [arg]". Names are case-insensitive and the
// argument is everything after the first space, trimmed.
func ParseCommand(input string) (Command, error) {
	s := strings.TrimSpace(input)
	if !strings.HasPrefix(s, "/") {
		return Command{}, fmt.Errorf("not a command: %q", input)
	}
	name, arg, _ := strings.Cut(s[1:], " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	def, ok := lookupCommand(name)
	if !ok {
		return Command{}, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}
	if def.needsArg && arg == "" {
		return Command{}, fmt.Errorf("/%s needs %s", def.name, def.args)
	}
	return Command{Name: def.name, Arg: arg}, nil
}

func lookupCommand(name string) (commandDef, bool) {
	for _, def := range commandDefs {
		if def.name == name {
			return def, true
		}
		for _, alias := range def.aliases {
			if alias == name {
				return def, true
			}
		}
	}
	return commandDef{}, false
}

// CommandHelp returns one line per command.
func CommandHelp() []string {
	lines := make([]string, 0, len(commandDefs))
	for _, def := range commandDefs {
		usage := "/" + def.name
		if def.args != "" {
			usage += " " + def.args
		}
		lines = append(lines, fmt.Sprintf("%-18s %s", usage, def.desc))
	}
	return lines
}

// ResolveSession maps a 1-based sidebar index or a session id to an id.
func ResolveSession(arg string, sessions []model.Session) (string, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			return "", fmt.Errorf("no chat number %d", n)
		}
		return sessions[n-1].ID, nil
	}
	for _, s := range sessions {
		if s.ID == arg {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("no chat with id %q", arg)
}
