// Package storagetest holds the behaviour every storage.Driver must share.
// Driver test suites call DescribeDriver with a constructor.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
)

// DescribeDriver registers the shared driver tests. newDriver is called
// before every test and must return an empty store.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
		base   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
		base = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
			driver = nil
		}
	})

	user := func(id, name string, offset time.Duration) *network.User {
		u := &network.User{
			ID:           id,
			Name:         name,
			AccessToken:  "at-" + id,
			RefreshToken: "rt-" + id,
			CreatedAt:    base.Add(offset),
		}
		Expect(driver.UpsertUser(ctx, u)).To(Succeed())
		return u
	}

	request := func(userID, content string) *network.Request {
		r := &network.Request{UserID: userID, Content: content}
		Expect(driver.CreateRequest(ctx, r)).To(Succeed())
		return r
	}

	Describe("users", func() {
		It("round-trips a user with its tokens", func() {
			expiry := base.Add(time.Hour)
			u := &network.User{ID: "u1", Name: "Ada", Avatar: "a.png", AccessToken: "at", RefreshToken: "rt", TokenExpiry: expiry}
			Expect(driver.UpsertUser(ctx, u)).To(Succeed())
			Expect(u.CreatedAt).NotTo(BeZero())

			got, err := driver.GetUser(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("Ada"))
			Expect(got.Avatar).To(Equal("a.png"))
			Expect(got.AccessToken).To(Equal("at"))
			Expect(got.RefreshToken).To(Equal("rt"))
			Expect(got.TokenExpiry).To(BeTemporally("~", expiry, time.Millisecond))
		})

		It("keeps the first creation time on upsert", func() {
			first := user("u1", "Ada", 0)

			again := &network.User{ID: "u1", Name: "Ada L.", CreatedAt: base.Add(24 * time.Hour)}
			Expect(driver.UpsertUser(ctx, again)).To(Succeed())

			got, err := driver.GetUser(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("Ada L."))
			Expect(got.CreatedAt).To(BeTemporally("~", first.CreatedAt, time.Millisecond))
		})

		It("rejects a user without id", func() {
			Expect(driver.UpsertUser(ctx, &network.User{Name: "x"})).To(MatchError(storage.ErrMissingID))
		})

		It("returns NotFoundError for unknown users", func() {
			_, err := driver.GetUser(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("lists peers oldest first, excluding the requester, up to the limit", func() {
			user("c", "Cy", 2*time.Second)
			user("a", "Al", 0)
			user("b", "Bo", time.Second)
			user("d", "Di", 3*time.Second)

			peers, err := driver.ListPeers(ctx, "b", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(peerIDs(peers)).To(Equal([]string{"a", "c"}))

			all, err := driver.ListPeers(ctx, "b", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(peerIDs(all)).To(Equal([]string{"a", "c", "d"}))
		})

		It("updates tokens", func() {
			user("u1", "Ada", 0)
			expiry := base.Add(2 * time.Hour)
			Expect(driver.UpdateUserTokens(ctx, "u1", "at2", "rt2", expiry)).To(Succeed())

			got, err := driver.GetUser(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.AccessToken).To(Equal("at2"))
			Expect(got.RefreshToken).To(Equal("rt2"))
			Expect(got.TokenExpiry).To(BeTemporally("~", expiry, time.Millisecond))

			err = driver.UpdateUserTokens(ctx, "missing", "a", "r", expiry)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("counts member activity", func() {
			user("a", "Al", 0)
			user("b", "Bo", time.Second)
			r := request("a", "need a venue")
			Expect(driver.CreateConversation(ctx, &network.Conversation{RequestID: r.ID, PeerID: "b"})).To(Succeed())

			members, err := driver.ListMembers(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(members).To(HaveLen(2))
			Expect(members[0].ID).To(Equal("a"))
			Expect(members[0].RequestCount).To(Equal(1))
			Expect(members[0].ConversationCount).To(Equal(0))
			Expect(members[1].ID).To(Equal("b"))
			Expect(members[1].RequestCount).To(Equal(0))
			Expect(members[1].ConversationCount).To(Equal(1))
		})
	})

	Describe("requests", func() {
		It("assigns id, pending status and timestamps", func() {
			r := request("a", "find a translator")
			Expect(r.ID).NotTo(BeEmpty())
			Expect(r.Status).To(Equal(network.RequestPending))
			Expect(r.CreatedAt).NotTo(BeZero())

			got, err := driver.GetRequest(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("find a translator"))
			Expect(got.UserID).To(Equal("a"))
			Expect(got.Status).To(Equal(network.RequestPending))
		})

		It("updates status and stores summaries", func() {
			r := request("a", "find a translator")
			Expect(driver.UpdateRequestStatus(ctx, r.ID, network.RequestBroadcasting)).To(Succeed())

			got, err := driver.GetRequest(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(network.RequestBroadcasting))

			Expect(driver.SetRequestSummary(ctx, r.ID, "two peers can help")).To(Succeed())
			got, err = driver.GetRequest(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Summary).To(Equal("two peers can help"))
			Expect(got.Status).To(Equal(network.RequestCompleted))
		})

		It("lists requests newest first with requester and conversation counts", func() {
			user("a", "Al", 0)
			user("b", "", time.Second)
			older := &network.Request{ID: "r1", UserID: "a", Content: "old", CreatedAt: base}
			tieB := &network.Request{ID: "r3", UserID: "b", Content: "tie", CreatedAt: base.Add(time.Minute)}
			tieA := &network.Request{ID: "r2", UserID: "ghost", Content: "tie", CreatedAt: base.Add(time.Minute)}
			for _, r := range []*network.Request{older, tieB, tieA} {
				Expect(driver.CreateRequest(ctx, r)).To(Succeed())
			}
			for _, st := range []network.Status{network.StatusConcluded, network.StatusCompleted, network.StatusError} {
				Expect(driver.CreateConversation(ctx, &network.Conversation{RequestID: "r1", PeerID: "b", Status: st})).To(Succeed())
			}

			all, err := driver.ListRequests(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveExactElements(
				HaveField("ID", "r2"),
				HaveField("ID", "r3"),
				HaveField("ID", "r1"),
			))
			Expect(all[0].RequesterName).To(Equal(network.UnknownUserName))
			Expect(all[1].RequesterName).To(Equal(network.UnknownUserName))
			Expect(all[2].RequesterName).To(Equal("Al"))
			Expect(all[2].Content).To(Equal("old"))
			Expect(all[2].ConversationCount).To(Equal(3))
			Expect(all[2].SettledCount).To(Equal(2))
			Expect(all[0].ConversationCount).To(Equal(0))

			mine, err := driver.ListRequests(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(mine).To(HaveExactElements(HaveField("ID", "r1")))

			none, err := driver.ListRequests(ctx, "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(none).To(BeEmpty())
		})

		It("returns NotFoundError for unknown requests", func() {
			_, err := driver.GetRequest(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(storage.IsNotFound(driver.UpdateRequestStatus(ctx, "missing", network.RequestCompleted))).To(BeTrue())
			Expect(storage.IsNotFound(driver.SetRequestSummary(ctx, "missing", "s"))).To(BeTrue())
			_, err = driver.GetRequestWithConversations(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("conversations", func() {
		var req *network.Request

		BeforeEach(func() {
			user("a", "Al", 0)
			user("b", "Bo", time.Second)
			req = request("a", "need a photographer")
		})

		It("round-trips transcript, tokens and status", func() {
			conv := &network.Conversation{
				RequestID: req.ID,
				PeerID:    "b",
				Transcript: network.Transcript{
					{Role: network.RolePeer, Text: "I can help", EmittedAt: base},
					{Role: network.RoleRequester, Text: "When?", EmittedAt: base.Add(time.Second)},
				},
				RequesterToken: "req-session",
				PeerToken:      "peer-session",
				Status:         network.StatusMaxRounds,
				Reason:         "",
			}
			Expect(driver.CreateConversation(ctx, conv)).To(Succeed())
			Expect(conv.ID).NotTo(BeEmpty())

			got, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.RequestID).To(Equal(req.ID))
			Expect(got.PeerID).To(Equal("b"))
			Expect(got.RequesterToken).To(Equal(network.RequesterToken("req-session")))
			Expect(got.PeerToken).To(Equal(network.PeerToken("peer-session")))
			Expect(got.Status).To(Equal(network.StatusMaxRounds))
			Expect(got.Transcript).To(HaveLen(2))
			Expect(got.Transcript[0].Role).To(Equal(network.RolePeer))
			Expect(got.Transcript[1].Text).To(Equal("When?"))
			Expect(got.Transcript[1].EmittedAt).To(BeTemporally("~", base.Add(time.Second), time.Millisecond))
		})

		It("defaults to ongoing with an empty transcript", func() {
			conv := &network.Conversation{RequestID: req.ID, PeerID: "b"}
			Expect(driver.CreateConversation(ctx, conv)).To(Succeed())

			got, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(network.StatusOngoing))
			Expect(got.Transcript).To(BeEmpty())
		})

		It("updates transcript, peer token and status", func() {
			conv := &network.Conversation{RequestID: req.ID, PeerID: "b", PeerToken: "p1"}
			Expect(driver.CreateConversation(ctx, conv)).To(Succeed())

			conv.Transcript = append(conv.Transcript, network.Turn{Role: network.RoleRequester, Text: "hi", EmittedAt: base})
			conv.PeerToken = "p2"
			conv.Status = network.StatusCompleted
			Expect(driver.UpdateConversation(ctx, conv)).To(Succeed())

			got, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PeerToken).To(Equal(network.PeerToken("p2")))
			Expect(got.Status).To(Equal(network.StatusCompleted))
			Expect(got.Transcript).To(HaveLen(1))
		})

		It("returns NotFoundError for unknown conversations", func() {
			_, err := driver.GetConversation(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())

			err = driver.UpdateConversation(ctx, &network.Conversation{ID: "missing"})
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("lists a request's conversations by creation time then id", func() {
			user("c", "", 2*time.Second)
			late := &network.Conversation{ID: "z", RequestID: req.ID, PeerID: "b", CreatedAt: base.Add(time.Minute)}
			early := &network.Conversation{ID: "y", RequestID: req.ID, PeerID: "c", CreatedAt: base}
			tie := &network.Conversation{ID: "x", RequestID: req.ID, PeerID: "b", CreatedAt: base}
			for _, c := range []*network.Conversation{late, early, tie} {
				Expect(driver.CreateConversation(ctx, c)).To(Succeed())
			}

			convs, err := driver.GetConversationsByRequest(ctx, req.ID)
			Expect(err).NotTo(HaveOccurred())
			ids := make([]string, 0, len(convs))
			for _, c := range convs {
				ids = append(ids, c.ID)
			}
			Expect(ids).To(Equal([]string{"x", "y", "z"}))

			detail, err := driver.GetRequestWithConversations(ctx, req.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(detail.ID).To(Equal(req.ID))
			Expect(detail.Conversations).To(HaveLen(3))
			Expect(detail.Conversations[0].ID).To(Equal("x"))
			Expect(detail.Conversations[0].PeerName).To(Equal("Bo"))
			Expect(detail.Conversations[1].PeerName).To(Equal(network.UnknownUserName))
		})

		It("returns no conversations for a request without any", func() {
			convs, err := driver.GetConversationsByRequest(ctx, req.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(BeEmpty())
		})
	})
}

func peerIDs(users []*network.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
