package broadcast_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/broadcast"
	"github.com/papercomputeco/parley/pkg/engine"
	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
)

// flakyStore fails selected writes on top of the in-memory driver.
type flakyStore struct {
	*inmemory.Driver
	failConversationFor string
	failCompleted       bool
}

func (s *flakyStore) CreateConversation(ctx context.Context, conv *network.Conversation) error {
	if conv.PeerID == s.failConversationFor {
		return errors.New("disk full")
	}
	return s.Driver.CreateConversation(ctx, conv)
}

func (s *flakyStore) UpdateRequestStatus(ctx context.Context, id string, status network.RequestStatus) error {
	if s.failCompleted && status == network.RequestCompleted {
		return errors.New("connection reset")
	}
	return s.Driver.UpdateRequestStatus(ctx, id, status)
}

type recordingQueue struct {
	mu     sync.Mutex
	events []*eventstream.Event
}

func (q *recordingQueue) Enqueue(event *eventstream.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return true
}

func (q *recordingQueue) ofType(eventType string) []*eventstream.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*eventstream.Event
	for _, e := range q.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// everyoneSelector ignores the pool rules: it leads with a nil and the
// requester, then lists every user twice.
type everyoneSelector struct {
	store *flakyStore
}

func (s everyoneSelector) SelectPeers(ctx context.Context, requester *network.User) ([]*network.User, error) {
	users, err := s.store.ListPeers(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	out := append([]*network.User{nil, requester}, users...)
	return append(out, users...), nil
}

func drain(sink *broadcast.ChannelSink) []broadcast.Event {
	var events []broadcast.Event
	for e := range sink.Events() {
		events = append(events, e)
	}
	return events
}

var _ = Describe("Coordinator", func() {
	var (
		ctx      context.Context
		store    *flakyStore
		sender   *testutils.MockSender
		detector *testutils.MockDetector
		peers    []*network.User
		request  *network.Request
	)

	newCoordinator := func(mods ...func(*broadcast.Config)) *broadcast.Coordinator {
		eng, err := engine.New(engine.Config{Sender: sender, Detector: detector, MaxRounds: 3})
		Expect(err).NotTo(HaveOccurred())

		cfg := broadcast.Config{Store: store, Runner: eng}
		for _, mod := range mods {
			mod(&cfg)
		}
		c, err := broadcast.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = &flakyStore{Driver: inmemory.NewDriver()}
		sender = testutils.NewMockSender()
		detector = &testutils.MockDetector{ConcludeAtPeerTurn: 2}

		var err error
		peers, err = testutils.SeedUsers(ctx, store, "peer", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.UpsertUser(ctx, &network.User{ID: "requester", Name: "Requester", CreatedAt: time.Now()})).To(Succeed())

		request = &network.Request{UserID: "requester", Content: "need a projector for Saturday"}
		Expect(store.CreateRequest(ctx, request)).To(Succeed())
	})

	Describe("validation", func() {
		DescribeTable("rejects malformed input without side effects",
			func(requestID, content, requesterID, field string) {
				if requestID == "<request>" {
					requestID = request.ID
				}
				_, err := newCoordinator().Broadcast(ctx, requestID, content, requesterID)

				var ve *network.ValidationError
				Expect(errors.As(err, &ve)).To(BeTrue())
				Expect(ve.Field).To(Equal(field))
				Expect(sender.Calls()).To(BeEmpty())

				got, err := store.GetRequest(ctx, request.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Status).To(Equal(network.RequestPending))
			},
			Entry("empty request id", "", "content", "requester", "request_id"),
			Entry("blank content", "<request>", "   ", "requester", "content"),
			Entry("empty requester", "<request>", "content", "", "requester_id"),
			Entry("unknown requester", "<request>", "content", "ghost", "requester_id"),
		)

		It("reports an unknown request as not found", func() {
			_, err := newCoordinator().Broadcast(ctx, "missing", "content", "requester")
			Expect(err).To(HaveOccurred())
			Expect(network.IsValidation(err)).To(BeFalse())
			Expect(sender.Calls()).To(BeEmpty())
		})

		It("requires a sink for streaming", func() {
			err := newCoordinator().BroadcastWithStream(ctx, request.ID, "content", "requester", nil)
			Expect(network.IsValidation(err)).To(BeTrue())
		})
	})

	Describe("collect mode", func() {
		It("returns one result per peer and persists every conversation", func() {
			results, err := newCoordinator().Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(5))

			for i, r := range results {
				Expect(r.Status).To(Equal(network.ResultSuccess))
				Expect(r.PeerID).To(Equal(peers[i].ID))
				Expect(r.PeerName).To(Equal(peers[i].Name))
				Expect(r.ConversationID).NotTo(BeEmpty())
				Expect(r.ConversationStatus).To(Equal(network.StatusConcluded))
				Expect(r.Reply).To(Equal(peers[i].ID + " reply 2"))
			}

			convs, err := store.GetConversationsByRequest(ctx, request.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(HaveLen(5))

			got, err := store.GetRequest(ctx, request.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(network.RequestCompleted))
		})

		It("never contacts the requester as a peer and caps the pool", func() {
			_, err := testutils.SeedUsers(ctx, store, "extra", 8)
			Expect(err).NotTo(HaveOccurred())

			results, err := newCoordinator().Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(broadcast.DefaultPeerLimit))
			for _, r := range results {
				Expect(r.PeerID).NotTo(Equal("requester"))
			}
		})

		It("applies the pool rules to a custom selector", func() {
			_, err := testutils.SeedUsers(ctx, store, "extra", 9)
			Expect(err).NotTo(HaveOccurred())

			c := newCoordinator(func(cfg *broadcast.Config) {
				cfg.Selector = everyoneSelector{store: store}
			})
			results, err := c.Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(broadcast.DefaultPeerLimit))

			seen := map[string]bool{}
			for _, r := range results {
				Expect(r.PeerID).NotTo(Equal("requester"))
				Expect(seen).NotTo(HaveKey(r.PeerID))
				seen[r.PeerID] = true
			}
			for _, call := range sender.Calls() {
				if call.UserID != "requester" {
					Expect(seen).To(HaveKey(call.UserID))
				}
			}
		})

		It("caps a custom selector at a lower limit", func() {
			c := newCoordinator(func(cfg *broadcast.Config) {
				cfg.Selector = everyoneSelector{store: store}
				cfg.Limit = 3
			})
			results, err := c.Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
		})

		It("isolates a failing peer from its siblings", func() {
			sender.Errors["peer3"] = &network.AuthError{UserID: "peer3", Err: errors.New("token revoked")}

			results, err := newCoordinator().Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(5))

			for i, r := range results {
				if i == 2 {
					Expect(r.Status).To(Equal(network.ResultFailed))
					Expect(r.PeerName).To(Equal("peer 3"))
					Expect(r.Error).To(ContainSubstring("token revoked"))
					Expect(r.ConversationID).To(BeEmpty())
					continue
				}
				Expect(r.Status).To(Equal(network.ResultSuccess))
			}

			convs, err := store.GetConversationsByRequest(ctx, request.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(HaveLen(4))
		})

		It("contains a panicking peer task", func() {
			sender.PanicFor = "peer2"

			results, err := newCoordinator().Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())
			Expect(results[1].Status).To(Equal(network.ResultFailed))
			Expect(results[1].Error).To(ContainSubstring("internal error"))
			Expect(results[0].Status).To(Equal(network.ResultSuccess))
			Expect(results[4].Status).To(Equal(network.ResultSuccess))
		})

		It("persists an errored run that produced turns", func() {
			sender.FailOnCall["peer1"] = testutils.FailAt{Call: 2, Err: &network.ChatBackendError{StatusCode: 500, Detail: "oops"}}

			results, err := newCoordinator().Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())

			r := results[0]
			Expect(r.Status).To(Equal(network.ResultFailed))
			Expect(r.ConversationID).NotTo(BeEmpty())
			Expect(r.ConversationStatus).To(Equal(network.StatusError))

			conv, err := store.GetConversation(ctx, r.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Status).To(Equal(network.StatusError))
			Expect(conv.Transcript).To(HaveLen(2))
		})

		It("fails only the peer whose conversation could not be saved", func() {
			store.failConversationFor = "peer4"

			results, err := newCoordinator().Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())
			Expect(results[3].Status).To(Equal(network.ResultFailed))
			Expect(results[3].Error).To(ContainSubstring("disk full"))
			Expect(results[2].Status).To(Equal(network.ResultSuccess))
		})

		It("returns results together with a final status write failure", func() {
			store.failCompleted = true

			results, err := newCoordinator().Broadcast(ctx, request.ID, request.Content, "requester")
			var pe *network.PersistenceError
			Expect(errors.As(err, &pe)).To(BeTrue())
			Expect(results).To(HaveLen(5))
		})

		It("keeps each conversation's tokens apart under concurrency", func() {
			detector.ConcludeAtPeerTurn = 0

			_, err := newCoordinator().Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())

			convs, err := store.GetConversationsByRequest(ctx, request.ID)
			Expect(err).NotTo(HaveOccurred())

			requesterTokens := map[network.RequesterToken]bool{}
			for _, conv := range convs {
				Expect(string(conv.PeerToken)).To(HavePrefix(conv.PeerID + "#"))
				Expect(string(conv.RequesterToken)).To(HavePrefix("requester#"))
				Expect(requesterTokens).NotTo(HaveKey(conv.RequesterToken))
				requesterTokens[conv.RequesterToken] = true
			}

			for _, call := range sender.CallsFor("requester") {
				if call.Token != "" {
					Expect(requesterTokens).To(HaveKey(network.RequesterToken(call.Token)))
				}
			}
		})

		It("announces finalized conversations", func() {
			queue := &recordingQueue{}
			c := newCoordinator(func(cfg *broadcast.Config) { cfg.Events = queue })

			_, err := c.Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())
			Expect(queue.ofType(eventstream.EventTypeConversationFinalized)).To(HaveLen(5))
		})

		It("feeds the progress sink without a stream", func() {
			progress := broadcast.NewChannelSink(256)
			c := newCoordinator(func(cfg *broadcast.Config) { cfg.Progress = progress })

			_, err := c.Broadcast(ctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())
			progress.Close()

			events := drain(progress)
			Expect(events[len(events)-1].Kind).To(Equal(broadcast.EventDone))
		})

		It("completes an empty broadcast", func() {
			lonely := &network.User{ID: "lonely"}
			store.Driver = inmemory.NewDriver()
			Expect(store.UpsertUser(ctx, lonely)).To(Succeed())
			req := &network.Request{UserID: "lonely", Content: "anyone?"}
			Expect(store.CreateRequest(ctx, req)).To(Succeed())

			results, err := newCoordinator().Broadcast(ctx, req.ID, req.Content, "lonely")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())

			got, err := store.GetRequest(ctx, req.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(network.RequestCompleted))
		})

		It("stops remaining work when cancelled", func() {
			sender.Delay = time.Second
			cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			results, err := newCoordinator().Broadcast(cctx, request.ID, request.Content, "requester")
			Expect(err).NotTo(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", 900*time.Millisecond))
			for _, r := range results {
				Expect(r.Status).To(Equal(network.ResultFailed))
			}
		})
	})

	Describe("streaming mode", func() {
		It("emits start, messages and one terminal event per peer, then done", func() {
			sender.Errors["peer5"] = &network.ChatBackendError{StatusCode: 503, Detail: "unavailable"}
			sink := broadcast.NewChannelSink(256)

			err := newCoordinator().BroadcastWithStream(ctx, request.ID, request.Content, "requester", sink)
			Expect(err).NotTo(HaveOccurred())
			sink.Close()

			events := drain(sink)
			Expect(events).NotTo(BeEmpty())

			last := events[len(events)-1]
			Expect(last.Kind).To(Equal(broadcast.EventDone))
			Expect(last.Total).To(Equal(5))

			byPeer := map[string][]broadcast.Event{}
			for _, e := range events[:len(events)-1] {
				Expect(e.Kind).NotTo(Equal(broadcast.EventDone))
				Expect(e.CorrelationID).NotTo(BeEmpty())
				byPeer[e.CorrelationID] = append(byPeer[e.CorrelationID], e)
			}
			Expect(byPeer).To(HaveLen(5))

			for _, seq := range byPeer {
				Expect(seq[0].Kind).To(Equal(broadcast.EventConversationStart))
				terminal := seq[len(seq)-1]
				Expect(terminal.Kind).To(BeElementOf(broadcast.EventConversationEnd, broadcast.EventError))
				for _, mid := range seq[1 : len(seq)-1] {
					Expect(mid.Kind).To(Equal(broadcast.EventMessage))
					Expect(mid.Text).NotTo(BeEmpty())
				}

				if seq[0].PeerID == "peer5" {
					Expect(terminal.Kind).To(Equal(broadcast.EventError))
					Expect(terminal.Error).To(ContainSubstring("unavailable"))
					continue
				}
				Expect(terminal.Kind).To(Equal(broadcast.EventConversationEnd))
				Expect(terminal.ConversationID).NotTo(BeEmpty())
				Expect(terminal.Status).To(Equal(network.StatusConcluded))
				Expect(seq).To(HaveLen(1 + 3 + 1))
			}
		})

		It("keeps writing after sink errors", func() {
			var mu sync.Mutex
			writes := 0
			sink := broadcast.SinkFunc(func(context.Context, broadcast.Event) error {
				mu.Lock()
				defer mu.Unlock()
				writes++
				return errors.New("client slow")
			})

			err := newCoordinator().BroadcastWithStream(ctx, request.ID, request.Content, "requester", sink)
			Expect(err).NotTo(HaveOccurred())
			// Five peers with start, three messages and an end each, plus done.
			Expect(writes).To(Equal(5*5 + 1))
		})

		It("delivers lifecycle events with a live context after cancellation", func() {
			sender.Delay = time.Second
			cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()

			var mu sync.Mutex
			late := map[broadcast.EventKind][]error{}
			sink := broadcast.SinkFunc(func(wctx context.Context, e broadcast.Event) error {
				mu.Lock()
				defer mu.Unlock()
				if e.Kind == broadcast.EventError || e.Kind == broadcast.EventDone {
					late[e.Kind] = append(late[e.Kind], wctx.Err())
				}
				return wctx.Err()
			})

			err := newCoordinator().BroadcastWithStream(cctx, request.ID, request.Content, "requester", sink)
			Expect(err).NotTo(HaveOccurred())
			Expect(cctx.Err()).To(HaveOccurred())

			Expect(late[broadcast.EventError]).To(HaveLen(5))
			Expect(late[broadcast.EventDone]).To(HaveLen(1))
			for _, errs := range late {
				for _, e := range errs {
					Expect(e).NotTo(HaveOccurred())
				}
			}
		})

		It("stops emitting once the sink is closed", func() {
			var mu sync.Mutex
			writes := 0
			sink := broadcast.SinkFunc(func(context.Context, broadcast.Event) error {
				mu.Lock()
				defer mu.Unlock()
				writes++
				if writes == 2 {
					return broadcast.ErrSinkClosed
				}
				return nil
			})

			err := newCoordinator().BroadcastWithStream(ctx, request.ID, request.Content, "requester", sink)
			Expect(err).NotTo(HaveOccurred())
			Expect(writes).To(Equal(2))

			convs, err := store.GetConversationsByRequest(ctx, request.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(HaveLen(5))
		})
	})
})
