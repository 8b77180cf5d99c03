package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/glossd/unsealer/client"
	"github.com/glossd/unsealer/common"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	envManagerPrivateKey = "MANAGER_PRIVATE_KEY"
	envServerPublicKey   = "SERVER_PUBLIC_KEY"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate the server and manager key pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.Keygen(cmd.OutOrStdout())
		},
	}
}

func newSealCmd() *cobra.Command {
	var managerPrivateKey, serverPublicKey, file string
	cmd := &cobra.Command{
		Use:     "seal [JSON]",
		Short:   "Encrypt a JSON config for the server",
		Example: `  unsealer seal -k $MANAGER_PRIVATE_KEY -p $SERVER_PUBLIC_KEY '{"secret":"world"}'`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			managerPrivate, err := common.ParseSecretKey(orEnv(managerPrivateKey, envManagerPrivateKey))
			if err != nil {
				return errors.Wrap(err, "manager private key")
			}
			serverPublic, err := common.ParsePublicKey(orEnv(serverPublicKey, envServerPublicKey))
			if err != nil {
				return errors.Wrap(err, "server public key")
			}
			config, err := readInput(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			payload, err := client.Seal(config, managerPrivate, serverPublic)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload)
			return nil
		},
	}
	cmd.Flags().StringVarP(&managerPrivateKey, "manager-private-key", "k", "", "base64url private key of the manager [$"+envManagerPrivateKey+"]")
	cmd.Flags().StringVarP(&serverPublicKey, "server-public-key", "p", "", "base64url public key of the server [$"+envServerPublicKey+"]")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the JSON config from a file, - for stdin")
	return cmd
}

func newSendCmd() *cobra.Command {
	var url, file string
	cmd := &cobra.Command{
		Use:   "send [PAYLOAD]",
		Short: "Send a sealed payload to a waiting unsealer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			msg, err := client.Send(url, strings.TrimSpace(payload))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&url, "url", "u", client.DefaultURL, "base URL of the unsealer")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the payload from a file, - for stdin")
	return cmd
}

func newHealthCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print the status of an unsealer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := client.Health(url)
			if err != nil {
				return err
			}
			client.PrintHealth(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().StringVarP(&url, "url", "u", client.DefaultURL, "base URL of the unsealer")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "unsealer version %s\n", common.Version)
		},
	}
}

func orEnv(value, env string) string {
	if value != "" {
		return value
	}
	return os.Getenv(env)
}

// readInput takes the positional argument, or the file, or stdin when the
// file is "-".
func readInput(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", errors.New("pass either an argument or --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file == "-":
		b, err := io.ReadAll(stdin)
		return string(b), errors.Wrap(err, "reading stdin")
	case file != "":
		b, err := os.ReadFile(file)
		return string(b), errors.Wrap(err, "reading input")
	}
	return "", errors.New("nothing to read: pass an argument or --file")
}
