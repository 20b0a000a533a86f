package engine

import (
	"fmt"

	"github.com/papercomputeco/parley/pkg/conclusion"
	"github.com/papercomputeco/parley/pkg/network"
)

// followUpContext is how many trailing turns the requester proxy sees.
const followUpContext = 4

// Opener is the first message a peer receives for a request.
func Opener(content string) string {
	return fmt.Sprintf("Hi! Someone in the network posted a request and would like to know whether you have anything that could help:\n\n%s\n\n"+
		"Please let me know whether you can offer something relevant, or share any suggestions you have.", content)
}

// FollowUp is the instruction sent to the requester's proxy after a peer
// reply that did not conclude the conversation.
func FollowUp(content string, transcript network.Transcript) string {
	return fmt.Sprintf("You are negotiating on behalf of your user, who posted this request:\n\n%s\n\n"+
		"Latest messages with the peer:\n\n%s\n\n"+
		"Write your next message to the peer. If they can help, ask one clarifying or confirming question about the key particulars "+
		"(timing, location, conditions). If they declined, thank them and close the conversation politely. "+
		"Reply with the message text only.",
		content, conclusion.Render(transcript.Tail(followUpContext)))
}
