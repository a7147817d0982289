package link

import (
	"fmt"
	"harnsnode/pkg/runtime/constant"
	"strings"
)

// CommandName returns the bare name of a query or set command.
func CommandName(command string) string {
	if i := strings.IndexByte(command, '='); i >= 0 {
		return strings.TrimSpace(command[:i])
	}
	return strings.TrimSpace(command)
}

func replyName(reply string) string {
	name, _, _ := strings.Cut(reply, "=")
	return strings.TrimSpace(name)
}

// ParseReply splits a <name>=<value> reply on the first '=' and checks that
// name matches the command it answers.
func ParseReply(command, reply string) (string, error) {
	i := strings.IndexByte(reply, '=')
	if i < 0 {
		return "", fmt.Errorf("%w: reply %q to %q is not of the form name=value", constant.ErrProtocol, reply, command)
	}
	name := strings.TrimSpace(reply[:i])
	if expected := CommandName(command); name != expected {
		return "", fmt.Errorf("%w: unexpected reply %q to %q, expected name %q", constant.ErrProtocol, reply, command, expected)
	}
	return strings.TrimSpace(reply[i+1:]), nil
}
