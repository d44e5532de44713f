package core

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
)

const (
	EnvUser = "USER"

	// DefaultPrompt is used when the configured prompt is empty.
	DefaultPrompt = `\d \u:\w\$ `

	promptTimeFormat = "Jan 02 15:04:05"
)

// promptInfo is everything a prompt can show.
type promptInfo struct {
	Now  time.Time
	User string
	Host string
	Cwd  string
	Home string
	Root bool
}

type promptColors struct {
	user *color.Color
	dir  *color.Color
}

func newPromptColors(enabled bool) *promptColors {
	pc := &promptColors{
		user: color.New(color.FgGreen, color.Bold),
		dir:  color.New(color.FgBlue, color.Bold),
	}
	for _, c := range []*color.Color{pc.user, pc.dir} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return pc
}

// expandPrompt replaces the backslash escapes in format:
//
//	\d  date and time, e.g. "Jan 02 15:04:05"
//	\u  user name
//	\h  host name up to the first '.'
//	\H  full host name
//	\w  working directory, with the home directory shown as ~
//	\W  last element of the working directory
//	\$  # for root, $ otherwise
//	\n  newline
//	\\  backslash
//
// Unknown escapes are kept as written.
func expandPrompt(format string, info promptInfo, colors *promptColors) string {
	var b strings.Builder
	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '\\' || i+1 == len(runes) {
			b.WriteRune(runes[i])
			continue
		}

		i++
		switch runes[i] {
		case 'd':
			b.WriteString(info.Now.Format(promptTimeFormat))
		case 'u':
			b.WriteString(colors.user.Sprint(info.User))
		case 'h':
			host := info.Host
			if idx := strings.IndexByte(host, '.'); idx >= 0 {
				host = host[:idx]
			}
			b.WriteString(colors.user.Sprint(host))
		case 'H':
			b.WriteString(colors.user.Sprint(info.Host))
		case 'w':
			b.WriteString(colors.dir.Sprint(tildePath(info.Cwd, info.Home)))
		case 'W':
			b.WriteString(colors.dir.Sprint(baseName(info.Cwd, info.Home)))
		case '$':
			if info.Root {
				b.WriteByte('#')
			} else {
				b.WriteByte('$')
			}
		case 'n':
			b.WriteByte('\n')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteRune('\\')
			b.WriteRune(runes[i])
		}
	}
	return b.String()
}

func tildePath(cwd, home string) string {
	if home == "" || home == "/" {
		return cwd
	}
	if cwd == home {
		return "~"
	}
	if strings.HasPrefix(cwd, home+"/") {
		return "~" + strings.TrimPrefix(cwd, home)
	}
	return cwd
}

func baseName(cwd, home string) string {
	if home != "" && cwd == home {
		return "~"
	}
	if cwd == "/" || cwd == "?" {
		return cwd
	}
	return filepath.Base(cwd)
}

// Prompt renders the configured prompt for the current session state.
func (s *Shell) Prompt() string {
	format := s.Config.Prompt
	if format == "" {
		format = DefaultPrompt
	}

	return expandPrompt(format, s.promptInfo(), s.promptColors)
}

func (s *Shell) promptInfo() promptInfo {
	info := promptInfo{
		Now:  s.now(),
		Root: s.OS.Getuid() == 0,
	}

	info.User = s.OS.Getenv(EnvUser)
	if info.User == "" {
		info.User, _ = s.OS.Username()
	}
	if info.User == "" {
		info.User = "user"
	}

	info.Host, _ = s.OS.Hostname()

	var err error
	if info.Cwd, err = s.OS.Getwd(); err != nil {
		info.Cwd = "?"
	}
	info.Home, _ = s.OS.UserHomeDir()

	return info
}
