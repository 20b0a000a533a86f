package cliui

import (
	"fmt"
	"io"

	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/utils"
)

// PrintResults prints one line per broadcast result.
func PrintResults(w io.Writer, results []network.BroadcastResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, StepStyle.Render("  no peers were contacted"))
		return
	}
	for _, r := range results {
		if r.Status == network.ResultFailed {
			fmt.Fprintf(w, "  %s %s %s\n", FailMark, PeerStyle.Render(r.PeerName), r.Error)
			continue
		}
		fmt.Fprintf(w, "  %s %s %s %s\n",
			StatusMark(r.ConversationStatus),
			PeerStyle.Render(r.PeerName),
			string(r.ConversationStatus),
			StepStyle.Render(r.ConversationID),
		)
		if r.Reply != "" {
			fmt.Fprintf(w, "      %s\n", utils.Truncate(r.Reply, excerptRunes))
		}
	}
}

// PrintTranscript prints every turn of a conversation.
func PrintTranscript(w io.Writer, transcript network.Transcript, peerName string) {
	for _, turn := range transcript {
		fmt.Fprintf(w, "  %s: %s\n", RoleLabel(turn.Role, peerName), turn.Text)
	}
}

// PrintConversations prints a request's conversations with their status.
func PrintConversations(w io.Writer, convs []storage.ConversationDetail, full bool) {
	if len(convs) == 0 {
		fmt.Fprintln(w, StepStyle.Render("  no conversations"))
		return
	}
	for _, c := range convs {
		fmt.Fprintf(w, "%s %s %s %s\n",
			StatusMark(c.Status),
			PeerStyle.Render(c.PeerName),
			string(c.Status),
			StepStyle.Render(fmt.Sprintf("%s · %d turns", c.ID, len(c.Transcript))),
		)
		if full {
			PrintTranscript(w, c.Transcript, c.PeerName)
			fmt.Fprintln(w)
		}
	}
}

// PrintMembers prints the network's members with their activity counts.
func PrintMembers(w io.Writer, members []network.Member) {
	fmt.Fprintln(w, HeaderStyle.Render(fmt.Sprintf("%-24s %-24s %8s %13s", "ID", "NAME", "REQUESTS", "CONVERSATIONS")))
	for _, m := range members {
		name := m.Name
		if name == "" {
			name = network.UnknownUserName
		}
		fmt.Fprintf(w, "%-24s %-24s %8d %13d\n", m.ID, name, m.RequestCount, m.ConversationCount)
	}
}

// PrintRequests prints requests newest first with their settled and total
// conversation counts.
func PrintRequests(w io.Writer, requests []storage.RequestListing) {
	if len(requests) == 0 {
		fmt.Fprintln(w, StepStyle.Render("  no requests"))
		return
	}
	for _, r := range requests {
		fmt.Fprintf(w, "%s %s %s %s\n",
			PeerStyle.Render(r.RequesterName),
			string(r.Status),
			StepStyle.Render(fmt.Sprintf("%s · %d/%d settled", r.ID, r.SettledCount, r.ConversationCount)),
			StepStyle.Render(r.CreatedAt.Format("2006-01-02 15:04")),
		)
		fmt.Fprintf(w, "      %s\n", utils.Truncate(r.Content, excerptRunes))
	}
}
