package network_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/network"
)

var _ = Describe("Transcript", func() {
	var transcript network.Transcript

	BeforeEach(func() {
		transcript = network.Transcript{
			network.NewTurn(network.RolePeer, "p1"),
			network.NewTurn(network.RoleRequester, "r1"),
			network.NewTurn(network.RolePeer, "p2"),
		}
	})

	It("returns the tail in order", func() {
		tail := transcript.Tail(2)
		Expect(tail).To(HaveLen(2))
		Expect(tail[0].Text).To(Equal("r1"))
		Expect(tail[1].Text).To(Equal("p2"))
	})

	It("returns the whole transcript when the tail is longer", func() {
		Expect(transcript.Tail(10)).To(HaveLen(3))
		Expect(transcript.Tail(0)).To(BeEmpty())
	})

	It("finds the last turn of a role", func() {
		turn, ok := transcript.LastOf(network.RoleRequester)
		Expect(ok).To(BeTrue())
		Expect(turn.Text).To(Equal("r1"))

		_, ok = network.Transcript{}.LastOf(network.RolePeer)
		Expect(ok).To(BeFalse())
	})

	It("counts turns per role", func() {
		Expect(transcript.Count(network.RolePeer)).To(Equal(2))
		Expect(transcript.Count(network.RoleRequester)).To(Equal(1))
	})

	It("clones without sharing storage", func() {
		clone := transcript.Clone()
		clone[0].Text = "changed"
		Expect(transcript[0].Text).To(Equal("p1"))
	})
})

var _ = Describe("User", func() {
	It("falls back to a placeholder display name", func() {
		Expect((&network.User{}).DisplayName()).To(Equal(network.UnknownUserName))
		Expect((*network.User)(nil).DisplayName()).To(Equal(network.UnknownUserName))
		Expect((&network.User{Name: "Ada"}).DisplayName()).To(Equal("Ada"))
	})
})

var _ = Describe("Errors", func() {
	It("keeps the cause reachable through wrapping", func() {
		cause := errors.New("boom")
		err := fmt.Errorf("turn failed: %w", &network.ChatBackendError{StatusCode: 502, Detail: "bad gateway", Err: cause})

		var cbe *network.ChatBackendError
		Expect(errors.As(err, &cbe)).To(BeTrue())
		Expect(cbe.StatusCode).To(Equal(502))
		Expect(err.Error()).To(ContainSubstring("status 502"))
		Expect(errors.Is(err, cause)).To(BeTrue())
	})

	It("classifies auth and validation errors", func() {
		Expect(network.IsAuth(fmt.Errorf("x: %w", &network.AuthError{UserID: "u1", Err: errors.New("expired")}))).To(BeTrue())
		Expect(network.IsValidation(network.Invalid("content", "must not be empty"))).To(BeTrue())
		Expect(network.Invalid("content", "must not be empty").Error()).To(Equal("invalid content: must not be empty"))
	})

	It("wraps persistence failures once", func() {
		Expect(network.Persistence("create", nil)).To(BeNil())

		err := network.Persistence("create conversation", errors.New("disk full"))
		again := network.Persistence("outer", err)
		Expect(again).To(BeIdenticalTo(err))
		Expect(err.Error()).To(ContainSubstring("create conversation"))
	})
})
