package cliui_test

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/broadcast"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
)

var _ = Describe("Step", func() {
	It("reports success with a check mark", func() {
		var buf bytes.Buffer
		Expect(cliui.Step(&buf, "Broadcasting", func() error { return nil })).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("Broadcasting"))
		Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
	})

	It("returns fn's error with a fail mark", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "Summarizing", func() error { return errors.New("boom") })
		Expect(err).To(MatchError("boom"))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})
})

var _ = Describe("FormatDuration", func() {
	DescribeTable("formats durations",
		func(d time.Duration, want string) {
			Expect(cliui.FormatDuration(d)).To(Equal(want))
		},
		Entry("milliseconds", 12*time.Millisecond, "12ms"),
		Entry("seconds", 3200*time.Millisecond, "3.2s"),
	)
})

var _ = Describe("RoleLabel", func() {
	It("names peers and falls back for unnamed ones", func() {
		Expect(cliui.RoleLabel(network.RolePeer, "Ada")).To(ContainSubstring("Ada"))
		Expect(cliui.RoleLabel(network.RolePeer, "")).To(ContainSubstring(network.UnknownUserName))
		Expect(cliui.RoleLabel(network.RoleRequester, "Ada")).To(ContainSubstring("Requester"))
	})
})

var _ = Describe("StreamPrinter", func() {
	It("prints each event kind", func() {
		var buf bytes.Buffer
		p := cliui.NewStreamPrinter(&buf)
		ctx := context.Background()

		events := []broadcast.Event{
			{Kind: broadcast.EventConversationStart, CorrelationID: "c1", PeerName: "Ada"},
			{Kind: broadcast.EventMessage, CorrelationID: "c1", PeerName: "Ada", Role: network.RolePeer, Text: "I can lend a ladder"},
			{Kind: broadcast.EventConversationEnd, CorrelationID: "c1", PeerName: "Ada", Status: network.StatusConcluded, Reason: "agreed"},
			{Kind: broadcast.EventError, CorrelationID: "c2", PeerName: "Bo", Error: "auth error"},
			{Kind: broadcast.EventDone, Total: 2},
		}
		for _, ev := range events {
			Expect(p.Write(ctx, ev)).To(Succeed())
		}

		out := buf.String()
		Expect(out).To(ContainSubstring("I can lend a ladder"))
		Expect(out).To(ContainSubstring("concluded"))
		Expect(out).To(ContainSubstring("auth error"))
		Expect(out).To(ContainSubstring("2 conversations finished"))
	})

	It("reports ErrSinkClosed after Close", func() {
		p := cliui.NewStreamPrinter(&bytes.Buffer{})
		p.Close()
		err := p.Write(context.Background(), broadcast.Event{Kind: broadcast.EventDone})
		Expect(err).To(MatchError(broadcast.ErrSinkClosed))
	})
})

var _ = Describe("tables", func() {
	It("prints results for both outcomes", func() {
		var buf bytes.Buffer
		cliui.PrintResults(&buf, []network.BroadcastResult{
			{Status: network.ResultSuccess, PeerName: "Ada", ConversationID: "conv-1", ConversationStatus: network.StatusMaxRounds, Reply: "see you"},
			{Status: network.ResultFailed, PeerName: "Bo", Error: "backend down"},
		})
		Expect(buf.String()).To(ContainSubstring("conv-1"))
		Expect(buf.String()).To(ContainSubstring("see you"))
		Expect(buf.String()).To(ContainSubstring("backend down"))
	})

	It("prints full transcripts on request", func() {
		var buf bytes.Buffer
		cliui.PrintConversations(&buf, []storage.ConversationDetail{{
			Conversation: network.Conversation{
				ID:     "conv-1",
				Status: network.StatusConcluded,
				Transcript: network.Transcript{
					{Role: network.RolePeer, Text: "hello"},
					{Role: network.RoleRequester, Text: "hi there"},
				},
			},
			PeerName: "Ada",
		}}, true)
		Expect(buf.String()).To(ContainSubstring("2 turns"))
		Expect(buf.String()).To(ContainSubstring("hi there"))
	})

	It("prints members with the unknown user fallback", func() {
		var buf bytes.Buffer
		cliui.PrintMembers(&buf, []network.Member{{ID: "u1", RequestCount: 2, ConversationCount: 5}})
		Expect(buf.String()).To(ContainSubstring(network.UnknownUserName))
		Expect(buf.String()).To(ContainSubstring("u1"))
	})

	It("prints requests with their settled counts", func() {
		var buf bytes.Buffer
		cliui.PrintRequests(&buf, []storage.RequestListing{{
			Request:           network.Request{ID: "r1", Content: "need a ladder", Status: network.RequestCompleted},
			RequesterName:     "Ada",
			ConversationCount: 3,
			SettledCount:      1,
		}})
		Expect(buf.String()).To(ContainSubstring("Ada"))
		Expect(buf.String()).To(ContainSubstring("1/3 settled"))
		Expect(buf.String()).To(ContainSubstring("need a ladder"))

		buf.Reset()
		cliui.PrintRequests(&buf, nil)
		Expect(buf.String()).To(ContainSubstring("no requests"))
	})
})
