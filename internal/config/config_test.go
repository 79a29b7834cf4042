package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lazypower/recall/internal/config"
)

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(body string) string {
		path := filepath.Join(dir, "config.toml")
		Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
		return path
	}

	Describe("Default", func() {
		It("carries the retrieval and lifecycle defaults", func() {
			cfg := config.Default()
			Expect(cfg.Retrieval.Threshold).To(Equal(0.4))
			Expect(cfg.Retrieval.TopK).To(Equal(12))
			Expect(cfg.Retrieval.SessionDepth).To(Equal(2))
			Expect(cfg.Retrieval.Speakers).To(HaveKeyWithValue("carol", 1.0))
			Expect(cfg.Lifecycle.DaysOld).To(Equal(30))
			Expect(cfg.Lifecycle.BoostStep).To(Equal(0.05))
			Expect(cfg.SinceWindow()).To(Equal(30 * 24 * time.Hour))
			Expect(cfg.AdapterTimeout()).To(Equal(3 * time.Second))
			Expect(cfg.LifecycleInterval()).To(Equal(24 * time.Hour))
			Expect(cfg.Validate()).To(Succeed())
		})

		It("builds the listen address", func() {
			cfg := config.Default()
			Expect(cfg.ListenAddr()).To(Equal("127.0.0.1:37778"))
			Expect(cfg.BaseURL()).To(Equal("http://127.0.0.1:37778"))
		})
	})

	Describe("Load", func() {
		It("returns defaults when the file does not exist", func() {
			cfg, err := config.Load(filepath.Join(dir, "missing.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Semantic.Provider).To(Equal("sqlite"))
			Expect(cfg.Retrieval.Speakers).To(HaveLen(3))
		})

		It("overrides defaults from the file", func() {
			path := write(`
[server]
port = 9999

[semantic]
provider = "qdrant"
collection = "logs"

[retrieval]
threshold = 0.55
adapter_timeout = "750ms"

[retrieval.speakers]
dave = 0.9
`)
			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.Port).To(Equal(9999))
			Expect(cfg.Server.Bind).To(Equal("127.0.0.1"))
			Expect(cfg.Semantic.Provider).To(Equal("qdrant"))
			Expect(cfg.Semantic.Collection).To(Equal("logs"))
			Expect(cfg.Retrieval.Threshold).To(Equal(0.55))
			Expect(cfg.Retrieval.TopK).To(Equal(12))
			Expect(cfg.AdapterTimeout()).To(Equal(750 * time.Millisecond))
			Expect(cfg.Retrieval.Speakers).To(HaveKeyWithValue("dave", 0.9))
		})

		It("lets environment variables win over the file", func() {
			path := write("[llm]\nprovider = \"ollama\"\n")
			GinkgoT().Setenv("RECALL_LLM_PROVIDER", "anthropic")
			GinkgoT().Setenv("ANTHROPIC_API_KEY", "sk-test")
			GinkgoT().Setenv("RECALL_LIFECYCLE_DAYS_OLD", "45")

			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.LLM.Provider).To(Equal("anthropic"))
			Expect(cfg.LLM.AnthropicKey).To(Equal("sk-test"))
			Expect(cfg.Lifecycle.DaysOld).To(Equal(45))
		})

		It("rejects malformed files", func() {
			path := write("[server\nport = ")
			_, err := config.Load(path)
			Expect(err).To(HaveOccurred())
		})

		It("rejects unknown providers", func() {
			path := write("[temporal]\nprovider = \"duckdb\"\n")
			_, err := config.Load(path)
			Expect(err).To(MatchError(ContainSubstring("temporal.provider")))
		})

		It("requires a DSN for postgres", func() {
			path := write("[temporal]\nprovider = \"postgres\"\n")
			_, err := config.Load(path)
			Expect(err).To(MatchError(ContainSubstring("temporal.dsn")))
		})

		It("rejects bad durations", func() {
			path := write("[lifecycle]\ninterval = \"daily\"\n")
			_, err := config.Load(path)
			Expect(err).To(MatchError(ContainSubstring("lifecycle.interval")))
		})
	})

	Describe("Write", func() {
		It("round-trips through Load", func() {
			cfg := config.Default()
			cfg.Semantic.Provider = "qdrant"
			cfg.Events.Brokers = []string{"localhost:9092"}
			cfg.Lifecycle.Enabled = false

			path := filepath.Join(dir, "nested", "config.toml")
			Expect(config.Write(path, &cfg)).To(Succeed())

			loaded, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Semantic.Provider).To(Equal("qdrant"))
			Expect(loaded.Events.Brokers).To(Equal([]string{"localhost:9092"}))
			Expect(loaded.LifecycleInterval()).To(BeZero())
		})
	})
})
