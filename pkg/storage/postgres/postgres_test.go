package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/storage/postgres"
	"github.com/papercomputeco/parley/pkg/storage/storagetest"
)

const dsnEnv = "PARLEY_TEST_POSTGRES_DSN"

var _ = Describe("Driver", func() {
	It("fails fast on an unparsable connection string", func() {
		_, err := postgres.NewDriver(context.Background(), "postgres://%zz")
		Expect(err).To(HaveOccurred())
	})

	Context("against a live database", func() {
		BeforeEach(func() {
			if os.Getenv(dsnEnv) == "" {
				Skip(dsnEnv + " not set")
			}
		})

		storagetest.DescribeDriver(func() storage.Driver {
			ctx := context.Background()
			d, err := postgres.NewDriver(ctx, os.Getenv(dsnEnv))
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Truncate(ctx)).To(Succeed())
			return d
		})
	})
})
