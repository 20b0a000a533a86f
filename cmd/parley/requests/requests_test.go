package requestscmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	requestscmder "github.com/papercomputeco/parley/cmd/parley/requests"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/storage/sqlite"
)

var _ = Describe("requests", func() {
	var (
		dir    string
		dbPath string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		dbPath = filepath.Join(dir, "parley.db")

		ctx := context.Background()
		driver, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		Expect(driver.UpsertUser(ctx, &network.User{ID: "alice", Name: "Alice"})).To(Succeed())
		Expect(driver.UpsertUser(ctx, &network.User{ID: "bob", Name: "Bob"})).To(Succeed())
		mine := &network.Request{UserID: "alice", Content: "need a ladder"}
		Expect(driver.CreateRequest(ctx, mine)).To(Succeed())
		Expect(driver.CreateRequest(ctx, &network.Request{UserID: "bob", Content: "spare chairs?"})).To(Succeed())
		Expect(driver.CreateConversation(ctx, &network.Conversation{
			RequestID: mine.ID, PeerID: "bob", Status: network.StatusConcluded,
		})).To(Succeed())
	})

	run := func(args ...string) (string, error) {
		cmd := requestscmder.NewRequestsCmd()
		cmd.PersistentFlags().String("config-dir", dir, "")
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--storage", "sqlite", "--sqlite", dbPath))
		err := cmd.Execute()
		return out.String(), err
	}

	It("prints every request", func() {
		out, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("need a ladder"))
		Expect(out).To(ContainSubstring("spare chairs?"))
		Expect(out).To(ContainSubstring("1/1 settled"))
	})

	It("filters by member and prints JSON", func() {
		out, err := run("--user", "alice", "--json")
		Expect(err).NotTo(HaveOccurred())

		var listings []storage.RequestListing
		Expect(json.Unmarshal([]byte(out), &listings)).To(Succeed())
		Expect(listings).To(HaveLen(1))
		Expect(listings[0].RequesterName).To(Equal("Alice"))
		Expect(listings[0].ConversationCount).To(Equal(1))
		Expect(listings[0].SettledCount).To(Equal(1))
	})

	It("prints an empty JSON list for a member without requests", func() {
		out, err := run("--user", "carol", "--json")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(MatchJSON("[]"))
	})
})
