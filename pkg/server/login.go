package server

import "strings"

// Accounts authenticates players and resolves their grants.
type Accounts interface {
	Grants
	Check(name, password string) bool
}

const msgBadLogin = "Either that player does not exist, or has a different password."

// ParseConnect splits a login line into its command word, user and password.
// A quoted user name may contain spaces: connect "Sir Alice" secret.
func ParseConnect(msg string) (command, user, password string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", "", ""
	}

	parts := strings.SplitN(msg, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) < 2 {
		return command, "", ""
	}
	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return command, "", ""
	}

	if rest[0] == '"' {
		if end := strings.Index(rest[1:], "\""); end >= 0 {
			user = rest[1 : end+1]
			password = strings.TrimSpace(rest[end+2:])
			return command, user, password
		}
	}

	parts = strings.SplitN(rest, " ", 2)
	user = parts[0]
	if len(parts) == 2 {
		password = strings.TrimSpace(parts[1])
	}
	return command, user, password
}

// WelcomeText is the default banner shown to new connections.
const WelcomeText = `
  Crafty Professions stat service

"connect <name> <password>" to log in.
"QUIT" to disconnect.
Once connected, "/prof help" lists the commands you can use.

`
