package solana

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

const defaultConfirmTimeout = 2 * time.Minute

type Config struct {
	// Cluster config.
	Cluster rpc.Cluster

	// Path to a solana-keygen file with the wallet keypair.
	SolanaKeygenFile string

	// Commitment used for reads, preflight and confirmation.
	Commitment rpc.CommitmentType

	// How long to wait for a submitted transaction to be confirmed.
	ConfirmTimeout time.Duration
}

func NewDevNetConfig(solanaKeygenFile string) Config {
	return Config{
		Cluster:          rpc.DevNet,
		SolanaKeygenFile: solanaKeygenFile,
		Commitment:       rpc.CommitmentConfirmed,
		ConfirmTimeout:   defaultConfirmTimeout,
	}
}

func NewMainNetConfig(solanaKeygenFile string) Config {
	return Config{
		Cluster:          rpc.MainNetBeta,
		SolanaKeygenFile: solanaKeygenFile,
		Commitment:       rpc.CommitmentConfirmed,
		ConfirmTimeout:   defaultConfirmTimeout,
	}
}

// NewCustomConfig points the session to a private RPC provider.
// If wsURL is empty, it is derived from rpcURL.
func NewCustomConfig(solanaKeygenFile, rpcURL, wsURL string) Config {
	if wsURL == "" {
		wsURL = deriveWS(rpcURL)
	}
	return Config{
		Cluster: rpc.Cluster{
			Name: "custom",
			RPC:  rpcURL,
			WS:   wsURL,
		},
		SolanaKeygenFile: solanaKeygenFile,
		Commitment:       rpc.CommitmentConfirmed,
		ConfirmTimeout:   defaultConfirmTimeout,
	}
}

// ConfigForCluster returns config for "devnet", "mainnet" or "custom".
func ConfigForCluster(name, solanaKeygenFile, rpcURL, wsURL string) (Config, error) {
	switch name {
	case "devnet":
		return NewDevNetConfig(solanaKeygenFile), nil
	case "mainnet", "mainnet-beta":
		return NewMainNetConfig(solanaKeygenFile), nil
	case "custom":
		if rpcURL == "" {
			return Config{}, fmt.Errorf("custom cluster requires an RPC URL")
		}
		return NewCustomConfig(solanaKeygenFile, rpcURL, wsURL), nil
	}
	return Config{}, fmt.Errorf("unknown cluster %q", name)
}

func deriveWS(rpcURL string) string {
	switch {
	case len(rpcURL) > 8 && rpcURL[:8] == "https://":
		return "wss://" + rpcURL[8:]
	case len(rpcURL) > 7 && rpcURL[:7] == "http://":
		return "ws://" + rpcURL[7:]
	}
	return rpcURL
}
