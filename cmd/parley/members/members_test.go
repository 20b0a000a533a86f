package memberscmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	memberscmder "github.com/papercomputeco/parley/cmd/parley/members"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage/sqlite"
)

var _ = Describe("members", func() {
	var (
		dir    string
		dbPath string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		dbPath = filepath.Join(dir, "parley.db")
	})

	run := func(args ...string) (string, error) {
		cmd := memberscmder.NewMembersCmd()
		cmd.PersistentFlags().String("config-dir", dir, "")
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	storeArgs := func(args ...string) []string {
		return append(args, "--storage", "sqlite", "--sqlite", dbPath)
	}

	It("adds a member and stores the tokens", func() {
		out, err := run(storeArgs("add", "--id", "alice", "--name", "Alice",
			"--access-token", "tok", "--refresh-token", "ref", "--expires-in", "1h")...)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Alice"))

		ctx := context.Background()
		driver, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		user, err := driver.GetUser(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.AccessToken).To(Equal("tok"))
		Expect(user.RefreshToken).To(Equal("ref"))
		Expect(user.TokenExpiry.IsZero()).To(BeFalse())
	})

	It("requires an access token", func() {
		_, err := run(storeArgs("add", "--id", "alice")...)
		Expect(err).To(MatchError(ContainSubstring("access-token")))
	})

	It("rejects a negative expiry", func() {
		_, err := run(storeArgs("add", "--id", "alice", "--access-token", "tok", "--expires-in=-1m")...)
		Expect(network.IsValidation(err)).To(BeTrue())
	})

	It("lists members as JSON", func() {
		_, err := run(storeArgs("add", "--id", "alice", "--name", "Alice", "--access-token", "tok")...)
		Expect(err).NotTo(HaveOccurred())
		_, err = run(storeArgs("add", "--id", "bob", "--access-token", "tok")...)
		Expect(err).NotTo(HaveOccurred())

		out, err := run(storeArgs("list", "--json")...)
		Expect(err).NotTo(HaveOccurred())

		var members []network.Member
		Expect(json.Unmarshal([]byte(out), &members)).To(Succeed())
		Expect(members).To(HaveLen(2))
	})

	It("prints a table", func() {
		_, err := run(storeArgs("add", "--id", "alice", "--name", "Alice", "--access-token", "tok")...)
		Expect(err).NotTo(HaveOccurred())

		out, err := run(storeArgs("list")...)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("alice"))
		Expect(out).To(ContainSubstring("Alice"))
	})
})
