package summarycmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	summarycmder "github.com/papercomputeco/parley/cmd/parley/summary"
)

var _ = Describe("NewSummaryCmd", func() {
	It("registers its flags", func() {
		cmd := summarycmder.NewSummaryCmd()
		Expect(cmd.Flags().Lookup("generate")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("raw")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("completion-model")).NotTo(BeNil())
	})

	It("requires exactly one request id", func() {
		cmd := summarycmder.NewSummaryCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{})
		Expect(cmd.Execute()).To(HaveOccurred())
	})
})
