package itests

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glossd/fetch"
	"github.com/glossd/unsealer/client"
	"github.com/glossd/unsealer/common"
	"github.com/glossd/unsealer/greeting"
	"github.com/glossd/unsealer/process"
	"github.com/glossd/unsealer/seal"
	"github.com/glossd/unsealer/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	serverPublic   common.PublicKey
	serverPrivate  common.SecretKey
	managerPublic  common.PublicKey
	managerPrivate common.SecretKey
}

func newPair(t *testing.T) pair {
	var p pair
	var err error
	p.serverPublic, p.serverPrivate, err = seal.GenerateKeyPair()
	require.NoError(t, err)
	p.managerPublic, p.managerPrivate, err = seal.GenerateKeyPair()
	require.NoError(t, err)
	return p
}

type unsealed struct {
	config string
	err    error
}

// startUnsealer serves on a free port and returns its URL and the channel
// receiving the decrypted config.
func startUnsealer(t *testing.T, ctx context.Context, p pair) (string, <-chan unsealed) {
	t.Helper()
	s := server.New(common.Config{
		ServerPrivateKey: p.serverPrivate,
		ManagerPublicKey: p.managerPublic,
		Command:          "true",
	})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port

	configs := make(chan unsealed, 1)
	go func() {
		config, err := s.Serve(ctx, l)
		configs <- unsealed{config, err}
	}()
	if !common.IsPortOpenRetry(port, 50*time.Millisecond, 20) {
		t.Fatal("unsealer hasn't started")
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port), configs
}

func waitConfig(t *testing.T, configs <-chan unsealed) string {
	t.Helper()
	select {
	case u := <-configs:
		require.NoError(t, u.err)
		return u.config
	case <-time.After(7 * time.Second):
		t.Fatal("unsealer didn't stop after unsealing")
		return ""
	}
}

func lookupIn(env []string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		for _, kv := range env {
			if k, v, ok := strings.Cut(kv, "="); ok && k == key {
				return v, true
			}
		}
		return "", false
	}
}

func TestUnsealThenRunCommand(t *testing.T) {
	p := newPair(t)
	url, configs := startUnsealer(t, context.Background(), p)

	h, err := client.Health(url)
	require.NoError(t, err)
	assert.True(t, h.Sealed)

	payload, err := client.Seal(`{"secret":"World","debug":true}`, p.managerPrivate, p.serverPublic)
	require.NoError(t, err)
	msg, err := client.Send(url, payload)
	require.NoError(t, err)
	assert.Equal(t, server.UnsealedMessage, msg)

	env, err := process.EnvFromConfig(waitConfig(t, configs))
	require.NoError(t, err)

	var out bytes.Buffer
	r := &process.Runner{
		Command: `printf 'Hello %s! debug=%s\n' "$SECRET" "$DEBUG"`,
		Env:     process.BuildEnv([]string{"PATH=/usr/bin:/bin", "SERVER_PRIVATE_KEY=leak"}, env),
		Runs:    2,
		Stdout:  &out,
	}
	assert.NotContains(t, r.Env, "SERVER_PRIVATE_KEY=leak")
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, "Hello World! debug=true\nHello World! debug=true\n", out.String())
}

func TestUnsealThenGreet(t *testing.T) {
	p := newPair(t)
	url, configs := startUnsealer(t, context.Background(), p)

	payload, err := seal.SealJSON(map[string]string{"secret": "World"}, p.managerPrivate, p.serverPublic)
	require.NoError(t, err)
	_, err = client.Send(url, payload)
	require.NoError(t, err)

	env, err := process.EnvFromConfig(waitConfig(t, configs))
	require.NoError(t, err)
	childEnv := process.BuildEnv(nil, env)

	srv := httptest.NewServer(greeting.NewMux(greeting.LookupSecret(lookupIn(childEnv)), false))
	defer srv.Close()
	res, err := fetch.Get[string](srv.URL+"/", fetch.Config{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", res)
}

func TestWrongManagerKeyKeepsSealed(t *testing.T) {
	p := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	url, _ := startUnsealer(t, ctx, p)

	intruder := newPair(t)
	payload, err := client.Seal(`{"secret":"World"}`, intruder.managerPrivate, p.serverPublic)
	require.NoError(t, err)
	_, err = client.Send(url, payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")

	h, err := client.Health(url)
	require.NoError(t, err)
	assert.True(t, h.Sealed)
}
