package cli

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/store"
)

// testEnv holds a config file pointing every output into a temp dir.
type testEnv struct {
	dir    string
	config string
}

func newTestEnv(t *testing.T, datastore bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := "session:\n" +
		"  workers: 2\n" +
		"  log_dir: " + filepath.Join(dir, "logs") + "\n" +
		"store:\n" +
		"  root: " + filepath.Join(dir, "store") + "\n" +
		"datastore:\n" +
		"  enabled: " + map[bool]string{true: "true", false: "false"}[datastore] + "\n" +
		"  path: " + filepath.Join(dir, "formscan.db") + "\n" +
		"logging:\n" +
		"  level: error\n"
	path := filepath.Join(dir, "formscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &testEnv{dir: dir, config: path}
}

// run executes the root command and returns stdout.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := &App{In: strings.NewReader(stdin), Out: &out, Err: &errOut}
	err := Execute(context.Background(), app, append([]string{"--config", e.config}, args...))
	return out.String(), err
}

func writeForm(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 600, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 600; x++ {
			v := uint8(225)
			if x == 300 || y == 288 {
				v = 20
			}
			if (x/5+y/9)%17 == 0 {
				v = 80
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestConfigFingerprint(t *testing.T) {
	env := newTestEnv(t, false)

	out, err := env.run(t, "", "config", "fingerprint")
	require.NoError(t, err)
	assert.Contains(t, out, "fingerprint "+config.DefaultPipeline().Fingerprint())
}

func TestConfigShow(t *testing.T) {
	env := newTestEnv(t, false)

	out, err := env.run(t, "", "config", "show")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# "+env.config))
	assert.Contains(t, out, "workers: 2")
	assert.NotContains(t, out, "api_key")
}

func TestConfigCheck(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := store.Open(filepath.Join(env.dir, "store"), config.DefaultPipeline())
	require.NoError(t, err)

	out, err := env.run(t, "", "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "store")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "model  not configured")

	other := config.DefaultPipeline()
	other.Regions.PaddingX++
	require.NoError(t, config.WriteManifest(filepath.Join(env.dir, "store"), other))
	out, err = env.run(t, "", "config", "check")
	assert.Error(t, err)
	assert.Contains(t, out, "mismatch")
}

func TestInvalidConfigFails(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := env.run(t, "", "config", "show", "--log-level", "debug")
	require.NoError(t, err)

	_, err = (&testEnv{config: filepath.Join(env.dir, "missing.yaml")}).run(t, "", "config", "show")
	assert.Error(t, err)
}

func TestPredictPrintsPlaceholderRatings(t *testing.T) {
	env := newTestEnv(t, false)
	forms := t.TempDir()
	writeForm(t, forms, "form_001.png")

	out, err := env.run(t, "", "predict", forms)
	require.NoError(t, err)

	assert.Contains(t, out, "processed 1/1, failed 0")
	assert.Contains(t, out, "log: "+filepath.Join(env.dir, "logs"))
	assert.Contains(t, out, "sample 4")
	assert.Contains(t, out, "aroma="+form.NeutralRating.String()+"?")
}

func TestPredictRejectsUnknownFormat(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := env.run(t, "", "predict", "--format", "xml", env.dir)
	assert.ErrorContains(t, err, "unknown output format")
}

func TestTrainWithAnswerKeyAndSessionIndex(t *testing.T) {
	env := newTestEnv(t, true)
	forms := t.TempDir()
	writeForm(t, forms, "form_001.png")
	writeForm(t, forms, "form_002.png")

	key := "forms:\n  form_001.png:\n    sample_1: [7, 5, skip, flag, 3]\n"
	keyPath := filepath.Join(env.dir, "answers.yaml")
	require.NoError(t, os.WriteFile(keyPath, []byte(key), 0o644))

	out, err := env.run(t, "", "train", "--answers", keyPath, "--workers", "1", forms)
	require.NoError(t, err)
	assert.Contains(t, out, "processed 2/2")
	assert.Contains(t, out, "7=7 ")
	assert.Contains(t, out, "(+21 this session)")

	out, err = env.run(t, "", "sessions", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "training")

	out, err = env.run(t, "", "sessions", "examples")
	require.NoError(t, err)
	assert.Contains(t, out, "7\t7\n")
	assert.Contains(t, out, "total\t21\n")
}

func TestTrainConsoleQuit(t *testing.T) {
	env := newTestEnv(t, false)
	forms := t.TempDir()
	writeForm(t, forms, "form_001.png")

	out, err := env.run(t, "4\nx\nq\n", "train", forms)
	require.NoError(t, err)
	assert.Contains(t, out, "rating [1-9]")
	assert.Contains(t, out, "(cancelled)")
	assert.Contains(t, out, "(+7 this session)")
}

func TestSessionsRequireDatastore(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := env.run(t, "", "sessions", "list")
	assert.ErrorContains(t, err, "datastore is disabled")
}

func TestSessionsFailedListsPaths(t *testing.T) {
	env := newTestEnv(t, true)
	forms := t.TempDir()
	writeForm(t, forms, "good.png")
	bad := filepath.Join(forms, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o644))

	out, err := env.run(t, "", "predict", forms)
	require.NoError(t, err)
	assert.Contains(t, out, "failed "+bad)

	id := strings.Fields(out)[1]
	id = strings.TrimSuffix(id, ":")
	out, err = env.run(t, "", "sessions", "failed", id[:8])
	require.NoError(t, err)
	assert.Equal(t, bad+"\n", out)
}

func TestInspectWritesOverlayAndRegions(t *testing.T) {
	env := newTestEnv(t, false)
	path := writeForm(t, t.TempDir(), "form_001.png")
	overlay := filepath.Join(env.dir, "overlay.png")
	regions := filepath.Join(env.dir, "regions")

	out, err := env.run(t, "", "inspect", path, "--overlay", overlay, "--regions", regions)
	require.NoError(t, err)
	assert.Contains(t, out, "600x480")
	assert.Contains(t, out, "sample 1: x ")
	assert.Contains(t, out, "timings: load=")

	_, err = os.Stat(overlay)
	assert.NoError(t, err)
	entries, err := os.ReadDir(regions)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
