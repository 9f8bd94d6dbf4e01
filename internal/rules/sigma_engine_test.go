package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufwinspector/pkg/models"
)

const sshProbeRule = `title: Blocked SSH probe
id: 0f5d2c8e-6d6b-4a51-9c1e-3f2b7f1d9a01
status: experimental
logsource:
  product: linux
  service: ufw
detection:
  selection:
    action: 'BLOCK'
    dst_port: '22'
  condition: selection
level: low
`

const dnsRule = `title: Outbound DNS
logsource:
  category: firewall
detection:
  selection:
    protocol: 'UDP'
    DPT: '53'
  filter:
    action: 'BLOCK'
  condition: selection and not filter
`

const windowsRule = `title: Process creation
logsource:
  product: windows
  service: sysmon
detection:
  selection:
    Image: 'cmd.exe'
  condition: selection
`

const keywordRule = `title: Keyword rule
logsource:
  service: ufw
detection:
  keywords:
    - 'nmap'
  condition: keywords
`

func writeRules(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestNewSigmaEngineLoadStats(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"ssh.yml":     sshProbeRule,
		"dns.yaml":    dnsRule,
		"windows.yml": windowsRule,
		"keyword.yml": keywordRule,
		"broken.yml":  "title: [unterminated",
		"README.md":   "not a rule",
	})

	engine, stats, err := NewSigmaEngine(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalFiles)
	assert.Equal(t, 2, stats.Loaded)
	assert.Equal(t, 1, stats.SkippedDatasource)
	assert.Equal(t, 1, stats.SkippedComplex)
	assert.Equal(t, 1, stats.SkippedInvalid)
	assert.Equal(t, 2, engine.Len())
}

func TestSigmaEngineApply(t *testing.T) {
	dir := writeRules(t, map[string]string{"ssh.yml": sshProbeRule, "dns.yml": dnsRule})
	engine, _, err := NewSigmaEngine(dir)
	require.NoError(t, err)

	tags := engine.Apply(models.Event{Type: models.EventBlock, Source: "203.0.113.5", Protocol: "TCP", DestPort: 22})
	assert.Equal(t, []string{"Blocked SSH probe"}, tags)

	tags = engine.Apply(models.Event{Type: models.EventAllow, Destination: "8.8.8.8", Protocol: "UDP", DestPort: 53})
	assert.Equal(t, []string{"Outbound DNS"}, tags)

	assert.Empty(t, engine.Apply(models.Event{Type: models.EventBlock, Protocol: "UDP", DestPort: 53}))
	assert.Empty(t, engine.Apply(models.Event{Type: models.EventAllow, Protocol: "TCP", DestPort: 443}))
}

func TestNewSigmaEngineSingleFile(t *testing.T) {
	dir := writeRules(t, map[string]string{"ssh.yml": sshProbeRule, "notes.txt": "x"})

	engine, stats, err := NewSigmaEngine(filepath.Join(dir, "ssh.yml"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Loaded)
	assert.Equal(t, 1, engine.Len())

	_, _, err = NewSigmaEngine(filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)

	_, _, err = NewSigmaEngine(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestNilAndNoopEngines(t *testing.T) {
	var engine *SigmaEngine
	assert.Nil(t, engine.Apply(models.Event{Type: models.EventBlock}))
	assert.Zero(t, engine.Len())

	var e Engine = &NoopEngine{}
	assert.Nil(t, e.Apply(models.Event{Type: models.EventBlock}))
}

func TestSigmaEventFrom(t *testing.T) {
	m := sigmaEventFrom(models.Event{Type: models.EventLimit, Source: "8.8.8.8", SourcePort: 1234, InInterface: "eth0"})
	assert.Equal(t, "LIMIT", m["action"])
	assert.Equal(t, "8.8.8.8", m["SRC"])
	assert.Equal(t, "1234", m["src_port"])
	assert.Equal(t, "eth0", m["IN"])
	assert.NotContains(t, m, "dst_ip")
	assert.NotContains(t, m, "DPT")
}
