package agent

import (
	"testing"

	"taskbot/internal/domain"
)

func TestParseCommandKeywords(t *testing.T) {
	cases := []struct {
		in   string
		kind domain.CommandKind
	}{
		{"/help", domain.CmdHelp},
		{"help", domain.CmdHelp},
		{"add buy milk", domain.CmdAdd},
		{"task call the bank", domain.CmdAdd},
		{"remind me to stretch at 3pm", domain.CmdRemind},
		{"meet with Ana tomorrow at 10", domain.CmdMeet},
		{"list", domain.CmdList},
		{"tasks today", domain.CmdList},
		{"done 2", domain.CmdDone},
		{"delete 1", domain.CmdDelete},
		{"move 3 to friday", domain.CmdMove},
		{"categories", domain.CmdCategories},
		{"videos", domain.CmdVideos},
		{"summary", domain.CmdSummary},
		{"can you water my plants", domain.CmdUnknown},
		{"", domain.CmdUnknown},
	}
	for _, tc := range cases {
		got := ParseCommand(tc.in)
		if got.Kind != tc.kind {
			t.Errorf("ParseCommand(%q).Kind = %v, want %v", tc.in, got.Kind, tc.kind)
		}
	}
}

func TestParseCommandCaseInsensitive(t *testing.T) {
	cmd := ParseCommand("ADD Buy Milk")
	if cmd.Kind != domain.CmdAdd || cmd.Text != "Buy Milk" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseCommandIndexVsSearch(t *testing.T) {
	cmd := ParseCommand("done 4")
	if cmd.Index != 4 || cmd.Search != "" {
		t.Fatalf("numeric ref: got %+v", cmd)
	}
	cmd = ParseCommand("done #2")
	if cmd.Index != 2 {
		t.Fatalf("hash ref: got %+v", cmd)
	}
	cmd = ParseCommand("done the milk one")
	if cmd.Index != 0 || cmd.Search != "the milk one" {
		t.Fatalf("search ref: got %+v", cmd)
	}
}

func TestParseCommandMove(t *testing.T) {
	cmd := ParseCommand("move 3 to next friday")
	if cmd.Kind != domain.CmdMove || cmd.Index != 3 || cmd.DateText != "next friday" {
		t.Fatalf("got %+v", cmd)
	}
	cmd = ParseCommand("move 3 friday")
	if cmd.DateText != "friday" {
		t.Fatalf("got %+v", cmd)
	}
	if ParseCommand("move 3").Kind != domain.CmdHelp {
		t.Fatal("move without date should fall back to help")
	}
}

func TestParseCommandVideoLink(t *testing.T) {
	cmd := ParseCommand("https://www.youtube.com/watch?v=abc123")
	if cmd.Kind != domain.CmdVideoLink || cmd.Platform != "YouTube" {
		t.Fatalf("got %+v", cmd)
	}
	cmd = ParseCommand("check this https://instagram.com/reel/xyz")
	if cmd.Kind != domain.CmdVideoLink || cmd.Platform != "Instagram" {
		t.Fatalf("embedded link: got %+v", cmd)
	}
	if got := ParseCommand("https://example.com/watch").Kind; got != domain.CmdUnknown {
		t.Fatalf("non-video link parsed as %v", got)
	}
}

func TestParseCommandBareKeywordIsHelp(t *testing.T) {
	for _, in := range []string{"add", "remind", "done", "delete"} {
		if got := ParseCommand(in).Kind; got != domain.CmdHelp {
			t.Errorf("ParseCommand(%q).Kind = %v, want CmdHelp", in, got)
		}
	}
}
