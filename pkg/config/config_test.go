package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/config"
)

func writeConfig(dir, data string) {
	err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(data), 0o600)
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Configer", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file and fills in defaults", func() {
			writeConfig(tmpDir, `version = 0

[engine]
max_rounds = 8

[completion]
provider = "ollama"
base_url = "http://localhost:11434"
`)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Engine.MaxRounds).To(Equal(8))
			Expect(cfg.Engine.PeerLimit).To(Equal(defaults.Engine.PeerLimit))
			Expect(cfg.Completion.Provider).To(Equal("ollama"))
			Expect(cfg.Completion.BaseURL).To(Equal("http://localhost:11434"))
			Expect(cfg.Completion.Model).To(Equal(defaults.Completion.Model))
			Expect(cfg.Chat.BaseURL).To(Equal(defaults.Chat.BaseURL))
			Expect(cfg.Events.Workers).To(Equal(defaults.Events.Workers))
		})

		It("rejects an unsupported version", func() {
			writeConfig(tmpDir, "version = 7\n")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 7")))
		})

		It("returns an error for malformed TOML", func() {
			writeConfig(tmpDir, "[engine\nmax_rounds = ")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("parsing config TOML")))
		})
	})

	Describe("SaveConfig", func() {
		It("writes a config that loads back unchanged", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Storage.Driver = "postgres"
			cfg.Storage.PostgresDSN = "postgres://localhost/parley"
			cfg.Events.Brokers = "k1:9092,k2:9092"
			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("writes the file with owner-only permissions", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(config.NewDefaultConfig())).To(Succeed())

			info, err := os.Stat(c.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("refuses a nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(MatchError("cannot save nil config"))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("round-trips string keys", func() {
			Expect(c.SetConfigValue("chat.base_url", "http://chat.local")).To(Succeed())

			val, err := c.GetConfigValue("chat.base_url")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("http://chat.local"))
		})

		It("round-trips numeric keys", func() {
			Expect(c.SetConfigValue("engine.max_rounds", "3")).To(Succeed())
			Expect(c.SetConfigValue("events.queue_size", "64")).To(Succeed())
			Expect(c.SetConfigValue("chat.requests_per_second", "2.5")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Engine.MaxRounds).To(Equal(3))
			Expect(cfg.Events.QueueSize).To(Equal(uint(64)))
			Expect(cfg.Chat.RequestsPerSecond).To(Equal(2.5))
		})

		It("rejects unknown keys", func() {
			Expect(c.SetConfigValue("proxy.upstream", "x")).To(MatchError(ContainSubstring("unknown config key")))

			_, err := c.GetConfigValue("proxy.upstream")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("rejects malformed values", func() {
			Expect(c.SetConfigValue("engine.max_rounds", "many")).To(HaveOccurred())
			Expect(c.SetConfigValue("engine.call_timeout", "soon")).To(HaveOccurred())
			Expect(c.SetConfigValue("events.workers", "-1")).To(HaveOccurred())
		})
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("lists every key exactly once in section order", func() {
		keys := config.ValidConfigKeys()
		Expect(keys[0]).To(Equal("storage.driver"))
		Expect(keys).To(ContainElements("engine.max_rounds", "oauth.client_secret", "progress.ttl"))

		seen := map[string]bool{}
		for _, k := range keys {
			Expect(seen[k]).To(BeFalse(), "duplicate key %s", k)
			seen[k] = true
			Expect(config.IsValidConfigKey(k)).To(BeTrue())
		}
	})

	It("reports unknown keys as invalid", func() {
		Expect(config.IsValidConfigKey("embedding.model")).To(BeFalse())
	})
})

var _ = Describe("PresetConfig", func() {
	It("builds a config for each known preset", func() {
		for _, name := range config.ValidPresetNames() {
			cfg, err := config.PresetConfig(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Completion.Provider).To(Equal(name))
			Expect(cfg.Engine.MaxRounds).To(Equal(5))
		}
	})

	It("is case insensitive", func() {
		cfg, err := config.PresetConfig("Anthropic")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Completion.BaseURL).To(Equal("https://api.anthropic.com"))
	})

	It("rejects unknown presets", func() {
		_, err := config.PresetConfig("gemini")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})
})

var _ = Describe("Duration", func() {
	It("parses valid durations", func() {
		Expect(config.Duration("90s", time.Minute)).To(Equal(90 * time.Second))
	})

	It("falls back on empty, malformed or non-positive input", func() {
		Expect(config.Duration("", time.Minute)).To(Equal(time.Minute))
		Expect(config.Duration("later", time.Minute)).To(Equal(time.Minute))
		Expect(config.Duration("-1s", time.Minute)).To(Equal(time.Minute))
	})
})

var _ = Describe("EventsConfig.BrokerList", func() {
	It("splits and trims broker addresses", func() {
		e := config.EventsConfig{Brokers: " k1:9092, ,k2:9092 "}
		Expect(e.BrokerList()).To(Equal([]string{"k1:9092", "k2:9092"}))
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		defaults := config.NewDefaultConfig()
		Expect(v.GetString("api.listen")).To(Equal(defaults.API.Listen))
		Expect(v.GetInt("engine.max_rounds")).To(Equal(defaults.Engine.MaxRounds))
		Expect(v.GetString("completion.provider")).To(Equal(defaults.Completion.Provider))
	})

	It("reads config file values over defaults", func() {
		writeConfig(tmpDir, `[engine]
max_rounds = 2
`)
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetInt("engine.max_rounds")).To(Equal(2))
		Expect(v.GetInt("engine.peer_limit")).To(Equal(10))
	})

	It("env vars take precedence over config file values", func() {
		writeConfig(tmpDir, `[completion]
provider = "anthropic"
`)
		GinkgoT().Setenv("PARLEY_COMPLETION_PROVIDER", "openai")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("completion.provider")).To(Equal("openai"))
	})

	Describe("Load", func() {
		It("merges file, env and defaults into a Config", func() {
			writeConfig(tmpDir, `[storage]
driver = "memory"
`)
			GinkgoT().Setenv("PARLEY_ENGINE_MAX_ROUNDS", "9")

			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := config.Load(v)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Driver).To(Equal("memory"))
			Expect(cfg.Engine.MaxRounds).To(Equal(9))
			Expect(cfg.API.Listen).To(Equal(config.NewDefaultConfig().API.Listen))
		})

		It("surfaces malformed environment values", func() {
			GinkgoT().Setenv("PARLEY_ENGINE_PEER_LIMIT", "lots")

			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = config.Load(v)
			Expect(err).To(MatchError(ContainSubstring("engine.peer_limit")))
		})
	})
})

var _ = Describe("Flag registry", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("binds cobra flags to viper keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagListen})
		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to the config file when the flag is not set", func() {
		writeConfig(tmpDir, `[api]
listen = ":5555"
`)
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagListen})
		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("skips bindings for unregistered keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{"nonexistent"})
		Expect(v.GetString("api.listen")).To(Equal(config.NewDefaultConfig().API.Listen))
	})

	It("pulls defaults and descriptions from the registry", func() {
		cmd := &cobra.Command{Use: "test"}
		var rounds uint
		config.AddUintFlag(cmd, config.Flags, config.FlagMaxRounds, &rounds)

		f := cmd.Flags().Lookup("max-rounds")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal("5"))
		Expect(f.Usage).To(Equal("Maximum rounds per negotiation"))
	})
})
