package domain

// CommandKind enumerates every command the deterministic parser can produce.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdHelp
	CmdAdd
	CmdRemind
	CmdMeet
	CmdList
	CmdDone
	CmdDelete
	CmdMove
	CmdCategories
	CmdVideos
	CmdVideoLink
	CmdSummary
)

func (k CommandKind) String() string {
	switch k {
	case CmdHelp:
		return "help"
	case CmdAdd:
		return "add"
	case CmdRemind:
		return "remind"
	case CmdMeet:
		return "meet"
	case CmdList:
		return "list"
	case CmdDone:
		return "done"
	case CmdDelete:
		return "delete"
	case CmdMove:
		return "move"
	case CmdCategories:
		return "categories"
	case CmdVideos:
		return "videos"
	case CmdVideoLink:
		return "video_link"
	case CmdSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// ParsedCommand is the result of the deterministic command parser.
// Produced once per message and never mutated. Which payload fields are
// meaningful depends on Kind:
//
//	CmdAdd/CmdRemind/CmdMeet  Text
//	CmdList                    Filter (optional)
//	CmdDone                    Index (>0) or Search
//	CmdDelete                  Index
//	CmdMove                    Index or Search, plus DateText
//	CmdVideoLink               URL, Platform
//	CmdUnknown                 Text (the raw input)
type ParsedCommand struct {
	Kind     CommandKind
	Text     string
	Filter   string
	Index    int
	Search   string
	DateText string
	URL      string
	Platform string
}
