package analyzer_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/analyzer"
	"github.com/papercomputeco/parley/pkg/completion"
	"github.com/papercomputeco/parley/pkg/network"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
)

const fullReply = `Here is the analysis:
{
  "summary": "Outdoor movie night for 20 people",
  "category": "Activity",
  "requirements": {"essential": ["projector", "screen"], "optional": ["popcorn machine"]},
  "constraints": {"budget": 150, "deadline": "next Saturday", "location": "Riverside Park", "capacity": 20},
  "tags": ["outdoor", "movie", "projector"],
  "clarification_needed": false,
  "questions": []
}`

var _ = Describe("Analyzer", func() {
	var (
		ctx       context.Context
		completer *testutils.MockCompleter
		a         *analyzer.Analyzer
	)

	BeforeEach(func() {
		ctx = context.Background()
		completer = &testutils.MockCompleter{Reply: fullReply}
		var err error
		a, err = analyzer.New(completer, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("decodes a complete analysis", func() {
		analysis, err := a.Analyze(ctx, "We want to host an outdoor movie night")
		Expect(err).NotTo(HaveOccurred())

		Expect(analysis.Summary).To(Equal("Outdoor movie night for 20 people"))
		Expect(analysis.Category).To(Equal(analyzer.CategoryActivity))
		Expect(analysis.Requirements.Essential).To(ConsistOf("projector", "screen"))
		Expect(analysis.Requirements.Optional).To(ConsistOf("popcorn machine"))
		Expect(*analysis.Constraints.Budget).To(BeNumerically("==", 150))
		Expect(*analysis.Constraints.Deadline).To(Equal("next Saturday"))
		Expect(*analysis.Constraints.Location).To(Equal("Riverside Park"))
		Expect(*analysis.Constraints.Capacity).To(Equal(20))
		Expect(analysis.Tags).To(HaveLen(3))
		Expect(analysis.ClarificationNeeded).To(BeFalse())
	})

	It("sends one structured prompt carrying the request", func() {
		_, err := a.Analyze(ctx, "  need a ladder  ")
		Expect(err).NotTo(HaveOccurred())

		prompts := completer.Prompts()
		Expect(prompts).To(HaveLen(1))
		Expect(prompts[0].Structured).To(BeTrue())
		Expect(prompts[0].User).To(HaveSuffix("need a ladder"))
	})

	It("leaves unstated constraints nil and fills empty lists", func() {
		completer.Reply = `{"summary": "A ladder", "category": "tools", "requirements": {},
			"constraints": {"budget": null}, "tags": [], "clarification_needed": true,
			"questions": ["How tall?"]}`

		analysis, err := a.Analyze(ctx, "need a ladder")
		Expect(err).NotTo(HaveOccurred())
		Expect(analysis.Category).To(Equal(analyzer.CategoryOther))
		Expect(analysis.Constraints.Budget).To(BeNil())
		Expect(analysis.Constraints.Location).To(BeNil())
		Expect(analysis.Requirements.Essential).NotTo(BeNil())
		Expect(analysis.ClarificationNeeded).To(BeTrue())
		Expect(analysis.Questions).To(ConsistOf("How tall?"))
	})

	It("rejects replies that do not match the schema", func() {
		completer.Reply = `{"summary": "x", "category": "item", "requirements": {}, "tags": "ladder", "clarification_needed": false}`

		_, err := a.Analyze(ctx, "need a ladder")
		var schemaErr *completion.SchemaError
		Expect(errors.As(err, &schemaErr)).To(BeTrue())
		Expect(schemaErr.Problems).To(ContainElement("tags must be array"))
	})

	It("propagates backend errors", func() {
		completer.Err = errors.New("upstream down")
		_, err := a.Analyze(ctx, "need a ladder")
		Expect(err).To(MatchError(ContainSubstring("upstream down")))
	})

	It("rejects empty content without calling the backend", func() {
		_, err := a.Analyze(ctx, "   ")
		Expect(network.IsValidation(err)).To(BeTrue())
		Expect(completer.Prompts()).To(BeEmpty())
	})
})
