package tunnel

import (
	"context"
	"errors"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/mlvd/internal/domain"
	"github.com/MrSnakeDoc/mlvd/internal/logger"
)

const testTemplate = `[Interface]
PrivateKey = CLIENTKEY
Address = 10.64.0.2/32

[Peer]
PublicKey = SERVER_PUBKEY
Endpoint = SERVER_IP:51820
AllowedIPs = 0.0.0.0/0
`

type runCall struct {
	name  string
	args  []string
	stdin string
}

// fakeRunner records calls and fails any command whose first argument is in
// fail.
type fakeRunner struct {
	calls  []runCall
	fail   map[string]error
	output map[string]string
}

func (f *fakeRunner) Run(_ context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	call := runCall{name: name, args: args}
	if stdin != nil {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		call.stdin = string(b)
	}
	f.calls = append(f.calls, call)

	sub := ""
	if len(args) > 0 {
		sub = args[0]
	}
	if err, ok := f.fail[sub]; ok {
		return nil, err
	}
	return []byte(f.output[sub]), nil
}

type fixture struct {
	ctrl   *Controller
	runner *fakeRunner
	cfg    Config
}

func newFixture(t *testing.T, present bool) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := Config{
		Interface:    "mlvd",
		WireGuardDir: filepath.Join(root, "wireguard"),
		TemplateFile: filepath.Join(root, "template.conf"),
		SysfsNetDir:  filepath.Join(root, "sys"),
	}
	require.NoError(t, os.MkdirAll(cfg.WireGuardDir, 0o700))
	require.NoError(t, os.MkdirAll(cfg.SysfsNetDir, 0o755))
	require.NoError(t, os.WriteFile(cfg.TemplateFile, []byte(testTemplate), 0o600))
	if present {
		require.NoError(t, os.Mkdir(filepath.Join(cfg.SysfsNetDir, "mlvd"), 0o755))
	}

	fr := &fakeRunner{fail: map[string]error{}, output: map[string]string{}}
	return &fixture{ctrl: New(cfg, fr, logger.NewNop()), runner: fr, cfg: cfg}
}

func testRelay() domain.Relay {
	return domain.Relay{
		Hostname:  "se-sto-wg-001",
		Location:  "se-sto",
		Active:    true,
		Provider:  "31173",
		Weight:    100,
		IP:        netip.MustParseAddr("185.65.135.1"),
		PublicKey: "PUBKEY=",
	}
}

func exitErr(code int, stderr string) error {
	return &CommandError{ExitCode: code, Stderr: stderr, Err: errors.New("exit status")}
}

func TestConnectAbsentBringsUp(t *testing.T) {
	fx := newFixture(t, false)

	state, err := fx.ctrl.Connect(context.Background(), testRelay())
	require.NoError(t, err)
	assert.Equal(t, Absent, state)

	require.Len(t, fx.runner.calls, 1)
	assert.Equal(t, runCall{name: "wg-quick", args: []string{"up", "mlvd"}}, fx.runner.calls[0])

	data, err := os.ReadFile(fx.ctrl.ConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "PublicKey = PUBKEY=")
	assert.Contains(t, string(data), "Endpoint = 185.65.135.1:51820")
	assert.NotContains(t, string(data), "SERVER_")

	info, err := os.Stat(fx.ctrl.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestConnectAbsentUpFails(t *testing.T) {
	fx := newFixture(t, false)
	fx.runner.fail["up"] = exitErr(1, "RTNETLINK answers: Operation not permitted")

	_, err := fx.ctrl.Connect(context.Background(), testRelay())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExternalTool)

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StepUp, te.Step)
	assert.Equal(t, 1, te.ExitCode)
	assert.Equal(t, []string{"wg-quick", "up", "mlvd"}, te.Command)
	assert.Contains(t, err.Error(), "Operation not permitted")
	assert.Len(t, fx.runner.calls, 1, "no rollback")
}

func TestConnectPresentReusesInterface(t *testing.T) {
	fx := newFixture(t, true)
	fx.runner.output["strip"] = "[Interface]\nPrivateKey = CLIENTKEY\n"

	state, err := fx.ctrl.Connect(context.Background(), testRelay())
	require.NoError(t, err)
	assert.Equal(t, Present, state)

	want := []runCall{
		{name: "wg-quick", args: []string{"strip", "mlvd"}},
		{name: "wg", args: []string{"setconf", "mlvd", "/dev/stdin"}, stdin: "[Interface]\nPrivateKey = CLIENTKEY\n"},
		{name: "wg", args: []string{"set", "mlvd", "fwmark", "0xca6c"}},
	}
	assert.Equal(t, want, fx.runner.calls)
}

func TestConnectPresentStepFailures(t *testing.T) {
	tests := []struct {
		name      string
		failArg   string
		wantStep  string
		wantCalls int
	}{
		{name: "strip", failArg: "strip", wantStep: StepStrip, wantCalls: 1},
		{name: "apply", failArg: "setconf", wantStep: StepApply, wantCalls: 2},
		{name: "fwmark", failArg: "set", wantStep: StepFwmark, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, true)
			fx.runner.fail[tt.failArg] = exitErr(2, "")

			_, err := fx.ctrl.Connect(context.Background(), testRelay())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExternalTool)

			var te *ToolError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantStep, te.Step)
			assert.Equal(t, 2, te.ExitCode)
			assert.Contains(t, err.Error(), tt.wantStep)
			assert.Len(t, fx.runner.calls, tt.wantCalls)
		})
	}
}

func TestConnectCustomFwmarkAndBinaries(t *testing.T) {
	fx := newFixture(t, true)
	cfg := fx.cfg
	cfg.Fwmark = 51820
	cfg.WgBin = "/usr/bin/wg"
	cfg.WgQuickBin = "/usr/bin/wg-quick"
	ctrl := New(cfg, fx.runner, logger.NewNop())

	_, err := ctrl.Connect(context.Background(), testRelay())
	require.NoError(t, err)
	require.Len(t, fx.runner.calls, 3)
	assert.Equal(t, "/usr/bin/wg-quick", fx.runner.calls[0].name)
	assert.Equal(t, "/usr/bin/wg", fx.runner.calls[1].name)
	assert.Equal(t, runCall{name: "/usr/bin/wg", args: []string{"set", "mlvd", "fwmark", "0xca6c"}}, fx.runner.calls[2])
}

func TestConnectMissingTemplate(t *testing.T) {
	fx := newFixture(t, false)
	require.NoError(t, os.Remove(fx.cfg.TemplateFile))

	_, err := fx.ctrl.Connect(context.Background(), testRelay())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplate)
	assert.Empty(t, fx.runner.calls)

	_, statErr := os.Stat(fx.ctrl.ConfigPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestConnectUnwritableConfigDir(t *testing.T) {
	fx := newFixture(t, false)
	require.NoError(t, os.RemoveAll(fx.cfg.WireGuardDir))

	_, err := fx.ctrl.Connect(context.Background(), testRelay())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExternalTool)
	assert.Empty(t, fx.runner.calls)
}

func TestConnectReplacesExistingConfig(t *testing.T) {
	fx := newFixture(t, false)
	require.NoError(t, os.WriteFile(fx.ctrl.ConfigPath(), []byte("old"), 0o644))

	_, err := fx.ctrl.Connect(context.Background(), testRelay())
	require.NoError(t, err)

	info, err := os.Stat(fx.ctrl.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(fx.cfg.WireGuardDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDisconnect(t *testing.T) {
	fx := newFixture(t, true)

	require.NoError(t, fx.ctrl.Disconnect(context.Background()))
	assert.Equal(t, []runCall{{name: "wg-quick", args: []string{"down", "mlvd"}}}, fx.runner.calls)
}

func TestDisconnectFails(t *testing.T) {
	fx := newFixture(t, false)
	fx.runner.fail["down"] = exitErr(1, "wg-quick: `mlvd' is not a WireGuard interface")

	err := fx.ctrl.Disconnect(context.Background())
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StepDown, te.Step)
	assert.ErrorIs(t, err, ErrExternalTool)
}

func TestToolErrorWithoutExitCode(t *testing.T) {
	fx := newFixture(t, false)
	notFound := errors.New(`exec: "wg-quick": executable file not found in $PATH`)
	fx.runner.fail["up"] = notFound

	_, err := fx.ctrl.Connect(context.Background(), testRelay())
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, -1, te.ExitCode)
	assert.ErrorIs(t, err, notFound)
	assert.Contains(t, err.Error(), "executable file not found")
}

func TestState(t *testing.T) {
	fx := newFixture(t, false)
	state, err := fx.ctrl.State()
	require.NoError(t, err)
	assert.Equal(t, Absent, state)
	assert.Equal(t, "absent", state.String())

	require.NoError(t, os.Mkdir(filepath.Join(fx.cfg.SysfsNetDir, "mlvd"), 0o755))
	state, err = fx.ctrl.State()
	require.NoError(t, err)
	assert.Equal(t, Present, state)
	assert.Equal(t, "present", state.String())
}

func TestRenderDoesNotWrite(t *testing.T) {
	fx := newFixture(t, false)

	conf, err := fx.ctrl.Render(testRelay())
	require.NoError(t, err)
	assert.Contains(t, conf, "Endpoint = 185.65.135.1:51820")

	_, statErr := os.Stat(fx.ctrl.ConfigPath())
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, fx.runner.calls)
}
