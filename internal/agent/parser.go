package agent

import (
	"regexp"
	"strconv"
	"strings"

	"taskbot/internal/domain"
)

// videoLinkRe matches bare links to the video platforms we file under the
// Videos category. Checked before keyword rules so a pasted link never gets
// treated as free text.
var videoLinkRe = regexp.MustCompile(`(?i)\bhttps?://(?:www\.)?(youtube\.com|youtu\.be|instagram\.com|tiktok\.com|vimeo\.com)/\S+`)

var indexRefRe = regexp.MustCompile(`^#?(\d+)$`)

// ParseCommand applies the deterministic parsing rules to one inbound
// message. Rules are ordered; the first match wins. Anything that matches
// no rule comes back as CmdUnknown and is handed to the intent classifier.
func ParseCommand(text string) domain.ParsedCommand {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.ParsedCommand{Kind: domain.CmdUnknown}
	}

	if m := videoLinkRe.FindStringSubmatch(trimmed); m != nil {
		return domain.ParsedCommand{
			Kind:     domain.CmdVideoLink,
			URL:      m[0],
			Platform: platformName(m[1]),
		}
	}

	head, rest := splitHead(trimmed)
	switch strings.ToLower(strings.TrimPrefix(head, "/")) {
	case "help", "start":
		return domain.ParsedCommand{Kind: domain.CmdHelp}
	case "add", "task", "todo":
		if rest == "" {
			return domain.ParsedCommand{Kind: domain.CmdHelp}
		}
		return domain.ParsedCommand{Kind: domain.CmdAdd, Text: rest}
	case "remind", "reminder":
		if rest == "" {
			return domain.ParsedCommand{Kind: domain.CmdHelp}
		}
		return domain.ParsedCommand{Kind: domain.CmdRemind, Text: rest}
	case "meet", "meeting", "schedule":
		if rest == "" {
			return domain.ParsedCommand{Kind: domain.CmdHelp}
		}
		return domain.ParsedCommand{Kind: domain.CmdMeet, Text: rest}
	case "list", "tasks", "show":
		return domain.ParsedCommand{Kind: domain.CmdList, Filter: strings.ToLower(rest)}
	case "done", "complete", "finish":
		return refCommand(domain.CmdDone, rest)
	case "delete", "remove", "del":
		return refCommand(domain.CmdDelete, rest)
	case "move", "reschedule":
		return parseMove(rest)
	case "categories", "cats":
		return domain.ParsedCommand{Kind: domain.CmdCategories}
	case "videos":
		return domain.ParsedCommand{Kind: domain.CmdVideos}
	case "summary", "stats":
		return domain.ParsedCommand{Kind: domain.CmdSummary}
	}

	return domain.ParsedCommand{Kind: domain.CmdUnknown, Text: trimmed}
}

// refCommand parses the argument of done/delete: either a numeric index
// into the last shown list or a search phrase.
func refCommand(kind domain.CommandKind, arg string) domain.ParsedCommand {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return domain.ParsedCommand{Kind: domain.CmdHelp}
	}
	if m := indexRefRe.FindStringSubmatch(arg); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return domain.ParsedCommand{Kind: kind, Index: n}
		}
	}
	return domain.ParsedCommand{Kind: kind, Search: arg}
}

// parseMove handles "move 3 to friday" / "move 3 friday".
func parseMove(arg string) domain.ParsedCommand {
	ref, rest := splitHead(strings.TrimSpace(arg))
	if ref == "" || rest == "" {
		return domain.ParsedCommand{Kind: domain.CmdHelp}
	}
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "to "))
	cmd := refCommand(domain.CmdMove, ref)
	if cmd.Kind != domain.CmdMove {
		return domain.ParsedCommand{Kind: domain.CmdHelp}
	}
	cmd.DateText = rest
	return cmd
}

func splitHead(s string) (head, rest string) {
	head, rest, _ = strings.Cut(s, " ")
	return head, strings.TrimSpace(rest)
}

func platformName(host string) string {
	switch strings.ToLower(host) {
	case "youtube.com", "youtu.be":
		return "YouTube"
	case "instagram.com":
		return "Instagram"
	case "tiktok.com":
		return "TikTok"
	case "vimeo.com":
		return "Vimeo"
	}
	return "Other"
}
