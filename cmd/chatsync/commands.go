package main

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/ehrlich-b/chatsync/internal/chat"
)

type cmdKind int

const (
	cmdNone cmdKind = iota
	cmdSend
	cmdLogin
	cmdSignup
	cmdLogout
	cmdHuman
	cmdAI
	cmdRate
	cmdReconnect
	cmdMode
	cmdHelp
	cmdQuit
	cmdInvalid
)

// command is one parsed input line.
type command struct {
	kind   cmdKind
	text   string
	creds  chat.Credentials
	id     string
	rating chat.Rating
}

const helpText = `lines without a leading slash are sent as messages ("//" sends a literal slash)
  /login <phone> [password]          sign in
  /signup <phone> [email] [password] create an account
  /logout                            sign out
  /human                             ask for a human agent
  /ai                                go back to the assistant
  /rate [id] like|dislike|none       rate an agent message (default: the last one)
  /reconnect                         drop and reopen the connection
  /mode                              show the support mode
  /quit                              exit`

// parseLine turns one input line into a command. Blank lines are cmdNone.
func parseLine(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdNone}, nil
	}
	if strings.HasPrefix(line, "//") {
		return command{kind: cmdSend, text: line[1:]}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSend, text: line}, nil
	}

	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "/login":
		if len(args) < 1 || len(args) > 2 {
			return command{}, errors.New("usage: /login <phone> [password]")
		}
		c := command{kind: cmdLogin, creds: chat.Credentials{Phone: args[0]}}
		if len(args) == 2 {
			c.creds.Password = args[1]
		}
		return c, nil
	case "/signup":
		if len(args) < 1 || len(args) > 3 {
			return command{}, errors.New("usage: /signup <phone> [email] [password]")
		}
		c := command{kind: cmdSignup, creds: chat.Credentials{Phone: args[0]}}
		for _, a := range args[1:] {
			if c.creds.Email == "" && c.creds.Password == "" && strings.Contains(a, "@") {
				c.creds.Email = a
			} else {
				c.creds.Password = a
			}
		}
		return c, nil
	case "/rate":
		return parseRate(args)
	case "/logout":
		return command{kind: cmdLogout}, nil
	case "/human":
		return command{kind: cmdHuman}, nil
	case "/ai":
		return command{kind: cmdAI}, nil
	case "/reconnect":
		return command{kind: cmdReconnect}, nil
	case "/mode":
		return command{kind: cmdMode}, nil
	case "/help", "/?":
		return command{kind: cmdHelp}, nil
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, errors.Errorf("unknown command %s, try /help", name)
}

func parseRate(args []string) (command, error) {
	usage := errors.New("usage: /rate [id] like|dislike|none")
	var id, value string
	switch len(args) {
	case 1:
		value = args[0]
	case 2:
		id, value = args[0], args[1]
	default:
		return command{}, usage
	}
	r, ok := chat.ParseRating(value)
	if !ok {
		return command{}, usage
	}
	return command{kind: cmdRate, id: id, rating: r}, nil
}

// needsPassword reports whether the command must prompt before it can run.
func (c command) needsPassword() bool {
	return (c.kind == cmdLogin || c.kind == cmdSignup) && c.creds.Password == ""
}

// resolveMessage finds the admin message a /rate refers to: the last one when id
// is empty, otherwise the latest whose id starts with id.
func resolveMessage(msgs []chat.Message, id string) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Sender != chat.SenderAdmin {
			continue
		}
		if id == "" || strings.HasPrefix(m.ID, id) {
			return m.ID, true
		}
	}
	return "", false
}
