package progress_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/broadcast"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/progress"
	"github.com/papercomputeco/parley/pkg/progress/memory"
)

// broadcastEvents is a two-peer broadcast where p2 fails.
func broadcastEvents(requestID string) []broadcast.Event {
	return []broadcast.Event{
		{Kind: broadcast.EventConversationStart, RequestID: requestID, CorrelationID: "c1", PeerID: "p1", PeerName: "Ada"},
		{Kind: broadcast.EventConversationStart, RequestID: requestID, CorrelationID: "c2", PeerID: "p2", PeerName: "Bo"},
		{Kind: broadcast.EventMessage, RequestID: requestID, CorrelationID: "c1", Role: network.RolePeer, Text: "I can help"},
		{Kind: broadcast.EventError, RequestID: requestID, CorrelationID: "c2", Error: "auth error"},
		{Kind: broadcast.EventMessage, RequestID: requestID, CorrelationID: "c1", Role: network.RoleRequester, Text: "When?"},
		{Kind: broadcast.EventConversationEnd, RequestID: requestID, CorrelationID: "c1", ConversationID: "conv-1", Status: network.StatusConcluded, Reason: "agreed"},
		{Kind: broadcast.EventDone, RequestID: requestID, Total: 2},
	}
}

var _ = Describe("Snapshot", func() {
	It("folds a broadcast's events", func() {
		var snap progress.Snapshot
		for _, e := range broadcastEvents("req-1") {
			snap.Apply(e)
		}

		Expect(snap.RequestID).To(Equal("req-1"))
		Expect(snap.Done).To(BeTrue())
		Expect(snap.Total).To(Equal(2))
		Expect(snap.Succeeded).To(Equal(1))
		Expect(snap.Failed).To(Equal(1))
		Expect(snap.Peers).To(HaveLen(2))

		ada := snap.Peers[0]
		Expect(ada.PeerName).To(Equal("Ada"))
		Expect(ada.Turns).To(Equal(2))
		Expect(ada.LastText).To(Equal("When?"))
		Expect(ada.ConversationID).To(Equal("conv-1"))
		Expect(ada.Status).To(Equal(network.StatusConcluded))

		bo := snap.Peers[1]
		Expect(bo.Finished).To(BeTrue())
		Expect(bo.Error).To(Equal("auth error"))
	})

	It("counts a peer's terminal event once", func() {
		var snap progress.Snapshot
		end := broadcast.Event{Kind: broadcast.EventConversationEnd, RequestID: "r", CorrelationID: "c1"}
		snap.Apply(end)
		snap.Apply(end)
		Expect(snap.Succeeded).To(Equal(1))
	})
})

var _ = Describe("Tracker", func() {
	It("records sink writes in the store", func() {
		ctx := context.Background()
		store := memory.NewStore(0)
		tracker := progress.NewTracker(store)

		for _, e := range broadcastEvents("req-9") {
			Expect(tracker.Write(ctx, e)).To(Succeed())
		}
		tracker.Close()

		snap, err := store.Get(ctx, "req-9")
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Done).To(BeTrue())
		Expect(snap.Peers).To(HaveLen(2))
	})
})
