package analyzecmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	analyzecmder "github.com/papercomputeco/parley/cmd/parley/analyze"
	"github.com/papercomputeco/parley/pkg/analyzer"
)

var _ = Describe("PrintAnalysis", func() {
	It("prints only the constraints that are set", func() {
		budget := 500.0
		location := "Berlin"
		var buf bytes.Buffer
		analyzecmder.PrintAnalysis(&buf, &analyzer.Analysis{
			Summary:      "venue for a party",
			Category:     analyzer.CategoryVenue,
			Requirements: analyzer.Requirements{Essential: []string{"30 seats"}},
			Constraints:  analyzer.Constraints{Budget: &budget, Location: &location},
			Tags:         []string{"party"},
		})

		out := buf.String()
		Expect(out).To(ContainSubstring("venue for a party"))
		Expect(out).To(ContainSubstring("30 seats"))
		Expect(out).To(ContainSubstring("500.00"))
		Expect(out).To(ContainSubstring("Berlin"))
		Expect(out).NotTo(ContainSubstring("Deadline"))
		Expect(out).NotTo(ContainSubstring("Capacity"))
		Expect(out).NotTo(ContainSubstring("clarifying"))
	})

	It("lists clarifying questions", func() {
		var buf bytes.Buffer
		analyzecmder.PrintAnalysis(&buf, &analyzer.Analysis{
			Summary:             "something",
			Category:            analyzer.CategoryOther,
			ClarificationNeeded: true,
			Questions:           []string{"Which day?"},
		})
		Expect(buf.String()).To(ContainSubstring("Which day?"))
	})
})

var _ = Describe("NewAnalyzeCmd", func() {
	It("requires request text", func() {
		cmd := analyzecmder.NewAnalyzeCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{})
		Expect(cmd.Execute()).To(HaveOccurred())
	})
})
