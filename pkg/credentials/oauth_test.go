package credentials_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/credentials"
)

var _ = Describe("OAuthClient", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
		client  *credentials.OAuthClient
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		client = credentials.NewOAuthClient(credentials.OAuthConfig{
			BaseURL:      server.URL + "/",
			ClientID:     "client-1",
			ClientSecret: "secret-1",
		})
	})

	It("posts a form encoded refresh grant and decodes the envelope", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/api/oauth/token/refresh"))
			Expect(r.Header.Get("Content-Type")).To(Equal("application/x-www-form-urlencoded"))
			Expect(r.ParseForm()).To(Succeed())
			Expect(r.PostForm.Get("grant_type")).To(Equal("refresh_token"))
			Expect(r.PostForm.Get("refresh_token")).To(Equal("rt-old"))
			Expect(r.PostForm.Get("client_id")).To(Equal("client-1"))
			Expect(r.PostForm.Get("client_secret")).To(Equal("secret-1"))

			_, _ = w.Write([]byte(`{"code":0,"data":{"accessToken":"at-new","refreshToken":"rt-new","expiresIn":7200}}`))
		}

		tok, err := client.Refresh(context.Background(), "rt-old")
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.AccessToken).To(Equal("at-new"))
		Expect(tok.RefreshToken).To(Equal("rt-new"))
		Expect(tok.ExpiresIn).To(Equal(int64(7200)))
	})

	It("fails on a non-zero envelope code", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"code":40001,"message":"refresh token revoked"}`))
		}

		_, err := client.Refresh(context.Background(), "rt-old")
		Expect(err).To(MatchError(ContainSubstring("refresh token revoked")))
	})

	It("fails on a non-JSON body", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}

		_, err := client.Refresh(context.Background(), "rt-old")
		Expect(err).To(MatchError(ContainSubstring("status 502")))
	})

	It("fails when the access token is missing", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"code":0,"data":{}}`))
		}

		_, err := client.Refresh(context.Background(), "rt-old")
		Expect(err).To(MatchError(ContainSubstring("missing access token")))
	})
})

var _ = Describe("Token", func() {
	It("turns a lifetime into an absolute expiry", func() {
		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		Expect(credentials.Token{ExpiresIn: 90}.Expiry(now)).To(Equal(now.Add(90 * time.Second)))
		Expect(credentials.Token{}.Expiry(now).IsZero()).To(BeTrue())
	})
})
