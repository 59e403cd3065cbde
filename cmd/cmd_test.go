package cmd

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"firestige.xyz/pktcraft/internal/config"
	"firestige.xyz/pktcraft/pkg/layers"
	"firestige.xyz/pktcraft/pkg/packet"
)

const helloTemplate = `layers:
  - type: ethernet
    dst: de:ad:be:ef:c0:fe
  - type: ipv4
    src: 127.0.0.1
    dst: 127.0.0.2
    protocol: udp
  - type: udp
    src_port: 1234
    dst_port: 53
  - type: payload
    data: hello world!
`

var defaultOpts = decodeOptions{firstLayer: layers.KindEthernet, maxLayers: packet.DefaultMaxLayers, output: "text"}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func helloFrame(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, runBuild(&buf, writeFile(t, "hello.yml", helloTemplate), "hex"))
	b, err := hex.DecodeString(strings.TrimSpace(buf.String()))
	require.NoError(t, err)
	return b
}

func TestRunBuild(t *testing.T) {
	frame := helloFrame(t)
	require.Len(t, frame, 14+20+8+12)

	p, err := packet.FromBytes(frame)
	require.NoError(t, err)
	mismatches, err := p.Verify()
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestRunBuildOutputs(t *testing.T) {
	path := writeFile(t, "hello.yml", helloTemplate)

	var buf bytes.Buffer
	require.NoError(t, runBuild(&buf, path, "text"))
	assert.Contains(t, buf.String(), "54 bytes, 4 layers")

	buf.Reset()
	assert.ErrorIs(t, runBuild(&buf, path, "pcap"), config.ErrInvalidConfig)

	assert.ErrorIs(t, runBuild(&buf, writeFile(t, "bad.yml", "layers:\n  - type: nope\n"), "hex"), config.ErrInvalidTemplate)
}

func TestRunDecodeText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runDecode(&buf, helloFrame(t), defaultOpts))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "0: Ethernet"))
	assert.Contains(t, lines[0], "(next IPv4)")
	assert.Contains(t, lines[1], "(next UDP)")
	assert.Contains(t, lines[2], "53(domain)")
	assert.True(t, strings.HasPrefix(lines[3], "3: Payload"))
}

func TestRunDecodeJSONIsATemplate(t *testing.T) {
	frame := helloFrame(t)
	opts := defaultOpts
	opts.output = "json"

	var buf bytes.Buffer
	require.NoError(t, runDecode(&buf, frame, opts))

	var doc map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc["layers"], 4)
	assert.Equal(t, "ipv4", doc["layers"][1]["type"])
	assert.Equal(t, "127.0.0.2", doc["layers"][1]["dst"])

	// The output feeds straight back into build.
	var rebuilt bytes.Buffer
	require.NoError(t, runBuild(&rebuilt, writeFile(t, "again.json", buf.String()), "hex"))
	assert.Equal(t, hex.EncodeToString(frame), strings.TrimSpace(rebuilt.String()))
}

func TestRunDecodeYAML(t *testing.T) {
	opts := defaultOpts
	opts.output = "yaml"

	var buf bytes.Buffer
	require.NoError(t, runDecode(&buf, helloFrame(t), opts))
	assert.Contains(t, buf.String(), "type: udp")
	assert.Contains(t, buf.String(), "dst_port: 53")
}

func TestRunDecodeOptions(t *testing.T) {
	frame := helloFrame(t)

	opts := defaultOpts
	opts.firstLayer = layers.KindIPv4
	var buf bytes.Buffer
	require.NoError(t, runDecode(&buf, frame[14:], opts))
	assert.True(t, strings.HasPrefix(buf.String(), "0: IPv4"))

	opts = defaultOpts
	opts.maxLayers = 2
	buf.Reset()
	require.NoError(t, runDecode(&buf, frame, opts))
	assert.Contains(t, buf.String(), "54 bytes, 2 layers")

	assert.ErrorIs(t, runDecode(&buf, frame[:20], defaultOpts), layers.ErrTruncated)
}

func TestRunUpdate(t *testing.T) {
	frame := helloFrame(t)
	stale := append([]byte(nil), frame...)
	stale[24], stale[25] = 0, 0       // IPv4 checksum
	stale[40], stale[41] = 0xAB, 0xCD // UDP checksum

	var buf bytes.Buffer
	require.NoError(t, runUpdate(&buf, stale, defaultOpts))
	assert.Equal(t, hex.EncodeToString(frame), strings.TrimSpace(buf.String()))
}

func TestRunVerify(t *testing.T) {
	frame := helloFrame(t)

	var buf bytes.Buffer
	require.NoError(t, runVerify(&buf, frame, defaultOpts))
	assert.Equal(t, "OK\n", buf.String())

	stale := append([]byte(nil), frame...)
	stale[17] = 0xFF  // IPv4 total length low byte
	stale[24] ^= 0xFF // IPv4 checksum

	buf.Reset()
	err := runVerify(&buf, stale, defaultOpts)
	assert.ErrorIs(t, err, errMismatch)
	assert.Contains(t, buf.String(), "layer 1 IPv4 total_length")
	assert.Contains(t, buf.String(), "layer 1 IPv4 checksum")

	opts := defaultOpts
	opts.output = "json"
	buf.Reset()
	assert.ErrorIs(t, runVerify(&buf, stale, opts), errMismatch)
	var got []packet.Mismatch
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, layers.KindIPv4, got[0].Kind)
}

func TestRunValidate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runValidate(&buf, writeFile(t, "hello.yaml", helloTemplate)))
	assert.Equal(t, "VALID: 4 layer(s), 54 bytes\n", buf.String())

	err := runValidate(&buf, writeFile(t, "bad.yaml", "layers:\n  - type: udp\n    dst_port: 99999\n"))
	assert.ErrorContains(t, err, "INVALID")
}

func TestFrameInput(t *testing.T) {
	var in frameInput

	b, err := in.read([]string{"de:ad be ef"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)

	b, err = in.read(nil, strings.NewReader("0x0102\n0304\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)

	in.file = writeFile(t, "frame.bin", "\x01\x02")
	in.raw = true
	b, err = in.read(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)

	_, err = in.read([]string{"01"}, nil)
	assert.Error(t, err, "argument and --file are exclusive")

	_, err = (&frameInput{}).read([]string{"0g"}, nil)
	assert.ErrorContains(t, err, "invalid hex frame")
}

func TestRootCommandVerify(t *testing.T) {
	frame := hex.EncodeToString(helloFrame(t))
	cfgPath := writeFile(t, "pktcraft.yml", "pktcraft:\n  output:\n    format: json\n  log:\n    level: error\n")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"verify", "--config", cfgPath, frame})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	require.NoError(t, Execute())
	assert.Equal(t, "[]\n", out.String(), "output format comes from the config file")
	assert.Equal(t, "json", cfg.Output.Format)
}

func TestRunBuildProtobufFeedsBuild(t *testing.T) {
	var pb bytes.Buffer
	require.NoError(t, runBuild(&pb, writeFile(t, "hello.yml", helloTemplate), "protobuf"))

	var out bytes.Buffer
	require.NoError(t, runBuild(&out, writeFile(t, "hello.pb", pb.String()), "hex"))
	assert.Equal(t, hex.EncodeToString(helloFrame(t)), strings.TrimSpace(out.String()))
}

func TestRunVerifyProtobuf(t *testing.T) {
	stale := helloFrame(t)
	stale[24] ^= 0xFF

	opts := defaultOpts
	opts.output = "protobuf"
	var buf bytes.Buffer
	assert.ErrorIs(t, runVerify(&buf, stale, opts), errMismatch)

	var list structpb.ListValue
	require.NoError(t, proto.Unmarshal(buf.Bytes(), &list))
	got := list.AsSlice()
	require.Len(t, got, 1)
	m := got[0].(map[string]interface{})
	assert.Equal(t, "IPv4", m["kind"])
	assert.Equal(t, "checksum", m["field"])
	assert.Equal(t, float64(1), m["index"])
}
