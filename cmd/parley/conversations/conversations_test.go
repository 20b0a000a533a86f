package conversationscmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	conversationscmder "github.com/papercomputeco/parley/cmd/parley/conversations"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
)

// withConfigDir mirrors the root command's persistent flag.
func withConfigDir(cmd *cobra.Command, dir string) *cobra.Command {
	cmd.Flags().String("config-dir", dir, "")
	return cmd
}

var _ = Describe("conversation commands", func() {
	var (
		ctx       context.Context
		dir       string
		dbPath    string
		requestID string
		convID    string
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		dbPath = filepath.Join(dir, "parley.db")

		driver, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		users, err := testutils.SeedUsers(ctx, driver, "user", 2)
		Expect(err).NotTo(HaveOccurred())

		req := &network.Request{UserID: users[0].ID, Content: "need a ladder"}
		Expect(driver.CreateRequest(ctx, req)).To(Succeed())
		requestID = req.ID

		conv := &network.Conversation{
			RequestID: req.ID,
			PeerID:    users[1].ID,
			Transcript: network.Transcript{
				network.NewTurn(network.RoleRequester, "do you have a ladder?"),
				network.NewTurn(network.RolePeer, "yes, a tall one"),
			},
			Status: network.StatusConcluded,
		}
		Expect(driver.CreateConversation(ctx, conv)).To(Succeed())
		convID = conv.ID
	})

	run := func(cmd *cobra.Command, args ...string) (string, error) {
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	Describe("conversations", func() {
		It("lists a request's conversations", func() {
			cmd := withConfigDir(conversationscmder.NewConversationsCmd(), dir)
			out, err := run(cmd, "--storage", "sqlite", "--sqlite", dbPath, requestID)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("need a ladder"))
			Expect(out).To(ContainSubstring("user 2"))
			Expect(out).To(ContainSubstring(convID))
			Expect(out).NotTo(ContainSubstring("a tall one"))
		})

		It("prints transcripts with --full", func() {
			cmd := withConfigDir(conversationscmder.NewConversationsCmd(), dir)
			out, err := run(cmd, "--storage", "sqlite", "--sqlite", dbPath, "--full", requestID)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("a tall one"))
		})

		It("prints JSON with --json", func() {
			cmd := withConfigDir(conversationscmder.NewConversationsCmd(), dir)
			out, err := run(cmd, "--storage", "sqlite", "--sqlite", dbPath, "--json", requestID)
			Expect(err).NotTo(HaveOccurred())

			var detail storage.RequestDetail
			Expect(json.Unmarshal([]byte(out), &detail)).To(Succeed())
			Expect(detail.Conversations).To(HaveLen(1))
			Expect(detail.Conversations[0].PeerName).To(Equal("user 2"))
		})

		It("fails for an unknown request", func() {
			cmd := withConfigDir(conversationscmder.NewConversationsCmd(), dir)
			_, err := run(cmd, "--storage", "sqlite", "--sqlite", dbPath, "missing")
			Expect(err).To(HaveOccurred())
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("complete", func() {
		It("marks the conversation completed", func() {
			cmd := withConfigDir(conversationscmder.NewCompleteCmd(), dir)
			out, err := run(cmd, "--storage", "sqlite", "--sqlite", dbPath, convID)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("completed"))

			driver, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer driver.Close()
			conv, err := driver.GetConversation(ctx, convID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Status).To(Equal(network.StatusCompleted))
			Expect(conv.Transcript).To(HaveLen(2))
		})
	})

	Describe("continue", func() {
		It("requires a message", func() {
			cmd := withConfigDir(conversationscmder.NewContinueCmd(), dir)
			_, err := run(cmd, convID)
			Expect(err).To(HaveOccurred())
		})
	})
})
