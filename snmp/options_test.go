package snmp_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/geekxflood/netsnmp/config"
	"github.com/geekxflood/netsnmp/logging"
	"github.com/geekxflood/netsnmp/snmp"
)

var _ = Describe("Options", func() {
	It("should document the defaults", func() {
		opts := snmp.DefaultOptions()
		Expect(opts.Version).To(Equal(snmp.Version1))
		Expect(opts.Transport).To(Equal("udp4"))
		Expect(opts.Port).To(Equal(161))
		Expect(opts.TrapPort).To(Equal(162))
		Expect(opts.Retries).To(Equal(1))
		Expect(opts.Timeout).To(Equal(5 * time.Second))
		Expect(opts.Validate()).To(Succeed())
	})

	DescribeTable("building options from a map",
		func(cfg map[string]any, check func(snmp.Options)) {
			opts, err := snmp.OptionsFromMap(cfg)
			Expect(err).NotTo(HaveOccurred())
			check(opts)
		},
		Entry("empty map keeps defaults", map[string]any{}, func(o snmp.Options) {
			Expect(o).To(Equal(snmp.DefaultOptions()))
		}),
		Entry("nested section", map[string]any{
			"snmp": map[string]any{
				"version":  "v1",
				"port":     1161,
				"retries":  3,
				"timeout":  250,
				"trapPort": 1162,
			},
		}, func(o snmp.Options) {
			Expect(o.Port).To(Equal(1161))
			Expect(o.TrapPort).To(Equal(1162))
			Expect(o.Retries).To(Equal(3))
			Expect(o.Timeout).To(Equal(250 * time.Millisecond))
		}),
		Entry("flat keys", map[string]any{
			"snmp_port":           int64(10161),
			"snmp_retries":        0,
			"snmp_source_address": "192.0.2.10",
			"snmp_sourcePort":     float64(40000),
			"snmp_transport":      "udp6",
		}, func(o snmp.Options) {
			Expect(o.Port).To(Equal(10161))
			Expect(o.Retries).To(Equal(0))
			Expect(o.SourceAddress).To(Equal("192.0.2.10"))
			Expect(o.SourcePort).To(Equal(40000))
			Expect(o.Transport).To(Equal("udp6"))
		}),
		Entry("flat keys override nested ones", map[string]any{
			"snmp":      map[string]any{"port": 1161},
			"snmp_port": 2161,
		}, func(o snmp.Options) {
			Expect(o.Port).To(Equal(2161))
		}),
	)

	DescribeTable("rejecting invalid maps",
		func(cfg map[string]any, message string) {
			_, err := snmp.OptionsFromMap(cfg)
			Expect(err).To(MatchError(ContainSubstring(message)))
		},
		Entry("unsupported version", map[string]any{"snmp": map[string]any{"version": "v3"}}, "unsupported SNMP version"),
		Entry("zero port", map[string]any{"snmp_port": 0}, "port must be between 1 and 65535"),
		Entry("negative retries", map[string]any{"snmp_retries": -2}, "retries cannot be negative"),
		Entry("zero timeout", map[string]any{"snmp_timeout": 0}, "timeout must be positive"),
		Entry("source port out of range", map[string]any{"snmp_source_port": 70000}, "source port must be between"),
	)

	Context("from a config file", func() {
		load := func(content string) config.Manager {
			manager, err := config.NewManager(config.Options{
				SchemaContent: config.ClientSchema,
				ConfigPath:    writeConfig(content),
				Logger:        logging.Discard(),
			})
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(manager.Close)
			return manager
		}

		It("should read the snmp section", func() {
			cc, err := snmp.ClientConfigFromProvider(load(`
snmp:
  target: 192.0.2.20
  community: private
  port: 1161
  retries: 0
  timeout: 750
  source_port: 40161
`))
			Expect(err).NotTo(HaveOccurred())
			Expect(cc.Target).To(Equal("192.0.2.20"))
			Expect(cc.Community).To(Equal("private"))
			Expect(cc.Options.Version).To(Equal(snmp.Version1))
			Expect(cc.Options.Transport).To(Equal("udp4"))
			Expect(cc.Options.Port).To(Equal(1161))
			Expect(cc.Options.TrapPort).To(Equal(162))
			Expect(cc.Options.Retries).To(Equal(0))
			Expect(cc.Options.Timeout).To(Equal(750 * time.Millisecond))
			Expect(cc.Options.SourcePort).To(Equal(40161))
		})

		It("should fall back to the defaults", func() {
			cc, err := snmp.ClientConfigFromProvider(load("logging:\n  level: warn\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cc.Target).To(Equal(snmp.DefaultTarget))
			Expect(cc.Community).To(Equal(snmp.DefaultCommunity))
			Expect(cc.Options.Port).To(Equal(snmp.DefaultPort))
			Expect(cc.Options.Retries).To(Equal(snmp.DefaultRetries))
			Expect(cc.Options.Timeout).To(Equal(snmp.DefaultTimeout))
		})
	})
})

func writeConfig(content string) string {
	path := filepath.Join(GinkgoT().TempDir(), "netsnmp.yaml")
	Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
	return path
}
