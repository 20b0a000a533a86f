package rankcmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	rankcmder "github.com/papercomputeco/parley/cmd/parley/rank"
	"github.com/papercomputeco/parley/pkg/matching"
)

var _ = Describe("PrintRanking", func() {
	It("prints matches best first with the coverage", func() {
		var buf bytes.Buffer
		rankcmder.PrintRanking(&buf, &matching.Ranking{
			Matches: []matching.Match{
				{PeerName: "Cy", ConversationID: "c3", Score: 91, Reason: "Cy is a strong match.",
					Breakdown: &matching.Breakdown{Relevance: 95, Availability: 90, Value: 88, Fit: 80}},
				{PeerName: "Ada", ConversationID: "c1", Score: 62, Reason: "Ada can help."},
			},
			High:     1,
			Medium:   1,
			Skipped:  1,
			Coverage: matching.Coverage{Fulfilled: []string{"ladder"}, Unfulfilled: []string{"delivery"}},
		})

		out := buf.String()
		Expect(out).To(ContainSubstring(" 1. Cy"))
		Expect(out).To(ContainSubstring(" 2. Ada"))
		Expect(out).To(ContainSubstring("relevance 95"))
		Expect(out).To(ContainSubstring("1 high · 1 medium · 0 low"))
		Expect(out).To(ContainSubstring("1 not evaluated"))
		Expect(out).To(ContainSubstring("ladder"))
		Expect(out).To(ContainSubstring("delivery"))
	})

	It("says when there is nothing to rank", func() {
		var buf bytes.Buffer
		rankcmder.PrintRanking(&buf, &matching.Ranking{})
		Expect(buf.String()).To(ContainSubstring("no offers to rank"))
		Expect(buf.String()).NotTo(ContainSubstring("not evaluated"))
	})
})

var _ = Describe("NewRankCmd", func() {
	It("requires a request id", func() {
		cmd := rankcmder.NewRankCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{})
		Expect(cmd.Execute()).To(HaveOccurred())
	})

	It("has the ranking flags", func() {
		cmd := rankcmder.NewRankCmd()
		Expect(cmd.Flags().Lookup("quick")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("json")).NotTo(BeNil())
	})
})
