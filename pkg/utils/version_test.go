package utils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/utils"
)

var _ = Describe("UserAgent", func() {
	var version, sha string

	BeforeEach(func() {
		version, sha = utils.Version, utils.Sha
	})

	AfterEach(func() {
		utils.Version, utils.Sha = version, sha
	})

	It("names the version and a short commit", func() {
		utils.Version = "v1.2.3"
		utils.Sha = "0123456789abcdef"
		Expect(utils.UserAgent()).To(Equal("parley/v1.2.3 (+0123456)"))
	})

	It("keeps short shas as they are", func() {
		utils.Version = "dev"
		utils.Sha = "HEAD"
		Expect(utils.UserAgent()).To(Equal("parley/dev (+HEAD)"))
	})
})
