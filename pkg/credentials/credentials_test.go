package credentials_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var (
		tmpDir string
		mgr    *credentials.Manager
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		var err error
		mgr, err = credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("targets credentials.toml inside the override directory", func() {
		Expect(mgr.GetTarget()).To(Equal(filepath.Join(tmpDir, "credentials.toml")))
	})

	Describe("Load", func() {
		It("returns empty credentials when no file exists", func() {
			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Providers).To(BeEmpty())
		})

		It("loads existing credentials", func() {
			data := `version = 0

[providers.openrouter]
api_key = "sk-or-test"
`
			Expect(os.WriteFile(mgr.GetTarget(), []byte(data), 0o600)).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Providers["openrouter"].APIKey).To(Equal("sk-or-test"))
		})

		It("returns an error for malformed TOML", func() {
			Expect(os.WriteFile(mgr.GetTarget(), []byte("not valid [[["), 0o600)).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).To(MatchError(ContainSubstring("parsing credentials")))
			Expect(creds).To(BeNil())
		})
	})

	Describe("Save", func() {
		It("persists credentials with restricted permissions", func() {
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())

			info, err := os.Stat(mgr.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("rejects nil credentials", func() {
			Expect(mgr.Save(nil)).To(HaveOccurred())
		})
	})

	Describe("key management", func() {
		It("overwrites and preserves keys per provider", func() {
			Expect(mgr.SetKey("openai", "sk-old")).To(Succeed())
			Expect(mgr.SetKey("anthropic", "sk-ant")).To(Succeed())
			Expect(mgr.SetKey("openai", "sk-new")).To(Succeed())

			Expect(mgr.GetKey("openai")).To(Equal("sk-new"))
			Expect(mgr.GetKey("anthropic")).To(Equal("sk-ant"))
			Expect(mgr.GetKey("nonexistent")).To(BeEmpty())
		})

		It("removes keys and tolerates unknown providers", func() {
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())
			Expect(mgr.RemoveKey("openai")).To(Succeed())
			Expect(mgr.RemoveKey("nonexistent")).To(Succeed())
			Expect(mgr.GetKey("openai")).To(BeEmpty())
		})

		It("lists stored providers in sorted order", func() {
			Expect(mgr.ListProviders()).To(BeEmpty())

			Expect(mgr.SetKey("openrouter", "sk-1")).To(Succeed())
			Expect(mgr.SetKey("anthropic", "sk-2")).To(Succeed())
			Expect(mgr.ListProviders()).To(Equal([]string{"anthropic", "openrouter"}))
		})
	})

	Describe("ResolveAPIKey", func() {
		It("prefers an explicit key", func() {
			Expect(mgr.SetKey("openai", "sk-file")).To(Succeed())
			Expect(mgr.ResolveAPIKey("openai", "sk-explicit")).To(Equal("sk-explicit"))
		})

		It("falls back to the credentials file before the environment", func() {
			GinkgoT().Setenv("OPENAI_API_KEY", "sk-env")
			Expect(mgr.SetKey("openai", "sk-file")).To(Succeed())
			Expect(mgr.ResolveAPIKey("openai", "")).To(Equal("sk-file"))
		})

		It("reads the provider environment variable last", func() {
			GinkgoT().Setenv("OPENROUTER_API_KEY", "sk-env")
			Expect(mgr.ResolveAPIKey("openrouter", "")).To(Equal("sk-env"))
		})

		It("returns empty for providers without keys", func() {
			Expect(mgr.ResolveAPIKey("ollama", "")).To(BeEmpty())
		})
	})
})

var _ = Describe("provider registry", func() {
	It("maps providers to their environment variables", func() {
		Expect(credentials.EnvVarForProvider("openrouter")).To(Equal("OPENROUTER_API_KEY"))
		Expect(credentials.EnvVarForProvider("openai")).To(Equal("OPENAI_API_KEY"))
		Expect(credentials.EnvVarForProvider("anthropic")).To(Equal("ANTHROPIC_API_KEY"))
		Expect(credentials.EnvVarForProvider("unknown")).To(BeEmpty())
	})

	It("only supports providers that take API keys", func() {
		Expect(credentials.SupportedProviders()).To(ConsistOf("openrouter", "openai", "anthropic"))
		Expect(credentials.IsSupportedProvider("anthropic")).To(BeTrue())
		Expect(credentials.IsSupportedProvider("ollama")).To(BeFalse())
	})
})
