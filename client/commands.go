package client

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/glossd/fetch"
	"github.com/glossd/unsealer/common"
	"github.com/glossd/unsealer/process"
	"github.com/glossd/unsealer/seal"
	"github.com/glossd/unsealer/server"
	"github.com/pkg/errors"
)

const DefaultURL = "http://127.0.0.1:3000"

const requestTimeout = 10 * time.Second

// Keygen prints a key pair for the server running the unsealer and one for
// the manager sealing the configs.
func Keygen(w io.Writer) error {
	serverPublic, serverPrivate, err := seal.GenerateKeyPair()
	if err != nil {
		return err
	}
	managerPublic, managerPrivate, err := seal.GenerateKeyPair()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SERVER_PRIVATE_KEY\t%s\n", serverPrivate.Encode())
	fmt.Fprintf(tw, "SERVER_PUBLIC_KEY\t%s\n", serverPublic.Encode())
	fmt.Fprintf(tw, "MANAGER_PRIVATE_KEY\t%s\n", managerPrivate.Encode())
	fmt.Fprintf(tw, "MANAGER_PUBLIC_KEY\t%s\n", managerPublic.Encode())
	return tw.Flush()
}

// Seal encrypts a JSON object config for the server. The config is checked
// the same way the unsealer will read it.
func Seal(config string, managerPrivate common.SecretKey, serverPublic common.PublicKey) (string, error) {
	if _, err := process.EnvFromConfig(config); err != nil {
		return "", err
	}
	return seal.Seal([]byte(config), managerPrivate, serverPublic)
}

// Send posts the sealed payload to the unsealer at baseURL.
func Send(baseURL, payload string) (string, error) {
	res, err := fetch.Post[string](endpoint(baseURL, "/init"), server.InitRequest{Config: payload}, fetch.Config{Timeout: requestTimeout})
	if err != nil {
		return "", describe(err)
	}
	return res, nil
}

func Health(baseURL string) (server.HealthResponse, error) {
	res, err := fetch.Get[server.HealthResponse](endpoint(baseURL, "/health"), fetch.Config{Timeout: requestTimeout})
	if err != nil {
		return res, describe(err)
	}
	return res, nil
}

func PrintHealth(w io.Writer, h server.HealthResponse) {
	state := "sealed"
	if !h.Sealed {
		state = "unsealed"
	}
	fmt.Fprintf(w, "Server: status=%s, version=%s, %s\n", h.Status, h.Version, state)
}

func endpoint(baseURL, path string) string {
	return strings.TrimSuffix(baseURL, "/") + path
}

func describe(err error) error {
	var ferr *fetch.Error
	if errors.As(err, &ferr) && ferr.Status != 0 {
		return errors.Errorf("unsealer responded with %d: %s", ferr.Status, err)
	}
	return errors.Wrap(err, "unsealer hasn't responded")
}
