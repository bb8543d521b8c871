package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/healthpool/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Address: ":8080", Environment: config.EnvDev},
		Logging: config.LoggingConfig{Level: config.LogLevelInfo},
		Pool: config.PoolConfig{
			Healthcheck: "/health",
			CheckConfig: config.CheckConfig{
				HealthyAfter:   3,
				UnhealthyAfter: 1,
				CheckInterval:  "10s",
				CheckTimeout:   "1s",
				HealthyStatus:  []int{200},
			},
		},
		Backends: []config.BackendConfig{
			{Address: "localhost:8081"},
		},
	}
}

var _ = Describe("Config", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
		os.Unsetenv("POOL_CHECK_INTERVAL")
		os.Unsetenv("LOGGING_LEVEL")
	})

	Describe("Load", func() {
		Context("with valid config file", func() {
			BeforeEach(func() {
				configContent := `
server:
  address: ":9090"
  environment: "staging"

logging:
  level: "debug"

pool:
  healthcheck: "/health"
  healthy_after: 2
  unhealthy_after: 2
  remove_after: 5
  check_interval: "5s"
  check_timeout: "500ms"
  healthy_status: [200, 204]
  body_contains: "ok"

backends:
  - address: "localhost:8081"
  - address: "https://api.internal:8443"
    healthcheck: "/ready"
    method: "POST"
    headers:
      X-Probe: "pool"
    body: '{"ping":true}'
    unhealthy_after: 4
    check_interval: "1s"
`
				err := os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(configContent), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":9090"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvStaging))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelDebug))
			})

			It("should parse the pool defaults", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Pool.Healthcheck).To(Equal("/health"))
				Expect(cfg.Pool.HealthyAfter).To(Equal(2))
				Expect(cfg.Pool.UnhealthyAfter).To(Equal(2))
				Expect(cfg.Pool.RemoveAfter).To(Equal(5))
				Expect(cfg.Pool.CheckInterval).To(Equal("5s"))
				Expect(cfg.Pool.CheckTimeout).To(Equal("500ms"))
				Expect(cfg.Pool.HealthyStatus).To(Equal([]int{200, 204}))
				Expect(cfg.Pool.BodyContains).To(Equal("ok"))
			})

			It("should parse backend overrides", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Backends).To(HaveLen(2))

				Expect(cfg.Backends[0].Address).To(Equal("localhost:8081"))
				Expect(cfg.Backends[0].Healthcheck).To(BeEmpty())

				b := cfg.Backends[1]
				Expect(b.Healthcheck).To(Equal("/ready"))
				Expect(b.Method).To(Equal("POST"))
				Expect(b.Headers).To(HaveKeyWithValue("x-probe", "pool"))
				Expect(b.Body).To(Equal(`{"ping":true}`))
				Expect(b.UnhealthyAfter).To(Equal(4))
				Expect(b.HealthyAfter).To(BeZero())
				Expect(b.CheckInterval).To(Equal("1s"))
			})

			It("should let environment variables override the file", func() {
				os.Setenv("POOL_CHECK_INTERVAL", "30s")
				os.Setenv("LOGGING_LEVEL", "warn")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Pool.CheckInterval).To(Equal("30s"))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelWarn))
			})
		})

		Context("without a config file", func() {
			It("should use defaults", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Server.Address).To(Equal(":8080"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvDev))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelInfo))
				Expect(cfg.Pool.HealthyAfter).To(Equal(3))
				Expect(cfg.Pool.UnhealthyAfter).To(Equal(1))
				Expect(cfg.Pool.RemoveAfter).To(BeZero())
				Expect(cfg.Pool.CheckInterval).To(Equal("10s"))
				Expect(cfg.Pool.CheckTimeout).To(Equal("1s"))
				Expect(cfg.Pool.HealthyStatus).To(Equal([]int{200}))
				Expect(cfg.Backends).To(BeEmpty())
			})
		})

		Context("with an invalid config file", func() {
			It("should reject backends without a resolvable healthcheck", func() {
				content := "backends:\n  - address: \"localhost:8081\"\n"
				Expect(os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(content), 0644)).To(Succeed())

				_, err := config.Load(tempDir)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("healthcheck"))
			})

			It("should reject malformed YAML", func() {
				Expect(os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte("server: [\n"), 0644)).To(Succeed())

				_, err := config.Load(tempDir)
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			cfg = validConfig()
		})

		It("should accept a valid configuration", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should accept an empty backend list", func() {
			cfg.Backends = nil
			Expect(cfg.Validate()).To(Succeed())
		})

		DescribeTable("rejects invalid values",
			func(mutate func(*config.Config)) {
				mutate(cfg)
				Expect(cfg.Validate()).NotTo(Succeed())
			},
			Entry("unknown environment", func(c *config.Config) { c.Server.Environment = "qa" }),
			Entry("address without port", func(c *config.Config) { c.Server.Address = "localhost" }),
			Entry("unknown log level", func(c *config.Config) { c.Logging.Level = "trace" }),
			Entry("negative healthy_after", func(c *config.Config) { c.Pool.HealthyAfter = -1 }),
			Entry("negative remove_after", func(c *config.Config) { c.Pool.RemoveAfter = -2 }),
			Entry("bad check_interval", func(c *config.Config) { c.Pool.CheckInterval = "often" }),
			Entry("zero check_timeout", func(c *config.Config) { c.Pool.CheckTimeout = "0s" }),
			Entry("status code out of range", func(c *config.Config) { c.Pool.HealthyStatus = []int{200, 700} }),
			Entry("empty backend address", func(c *config.Config) { c.Backends[0].Address = "" }),
			Entry("non-http backend scheme", func(c *config.Config) { c.Backends[0].Address = "ftp://files:21" }),
			Entry("unsupported probe method", func(c *config.Config) { c.Backends[0].Method = "DELETE" }),
			Entry("bad backend override", func(c *config.Config) { c.Backends[0].CheckTimeout = "-1s" }),
			Entry("no healthcheck anywhere", func(c *config.Config) { c.Pool.Healthcheck = "" }),
		)

		It("should accept a backend healthcheck when the pool has none", func() {
			cfg.Pool.Healthcheck = ""
			cfg.Backends[0].Healthcheck = "/status"
			Expect(cfg.Validate()).To(Succeed())
		})
	})

	Describe("ParseDuration", func() {
		It("should parse validated durations", func() {
			Expect(config.ParseDuration("1500ms")).To(Equal(1500 * time.Millisecond))
		})

		It("should treat empty as zero", func() {
			Expect(config.ParseDuration("")).To(BeZero())
		})
	})
})
