// token-cli runs the token manager flows against the configured cluster
// without starting the API server. The wallet is loaded from the keygen file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	goflags "github.com/jessevdk/go-flags"
	"github.com/jedib0t/go-pretty/v6/table"

	tokenmanager "gitlab.com/scpcorp/spl-token-manager"
	"gitlab.com/scpcorp/spl-token-manager/app"
	"gitlab.com/scpcorp/spl-token-manager/common"
	"gitlab.com/scpcorp/spl-token-manager/notify"
)

const (
	actionWallet      = "wallet"
	actionQuote       = "quote"
	actionCreate      = "create"
	actionList        = "list"
	actionBurn        = "burn"
	actionUpdate      = "update"
	actionAuthorities = "authorities"
	actionRevoke      = "revoke"
	actionHistory     = "history"
)

func usage() {
	fmt.Println("Usage: token-cli [options] <action> [<parameters>]")
	fmt.Println("Actions:")
	fmt.Println("  wallet")
	fmt.Println("  quote <size-bytes>")
	fmt.Println("  create <name> <symbol> <decimals> <supply> <image-file> <description>")
	fmt.Println("  list")
	fmt.Println("  burn <mint> <amount>")
	fmt.Println("  update <mint> <name> <symbol> <metadata-url>")
	fmt.Println("  authorities")
	fmt.Println("  revoke <mint> <mint|freeze>")
	fmt.Println("  history")
}

var errUsage = errors.New("bad usage")

func main() {
	log.SetFlags(0)
	var config app.Config
	args, err := goflags.Parse(&config)
	if err != nil {
		if err, ok := err.(*goflags.Error); ok && err.Type == goflags.ErrHelp {
			os.Exit(2)
		}
		log.Fatalf("Error during flags parsing: %v.", err)
	}
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	if err := app.SetupLogging(config); err != nil {
		log.Fatal(err)
	}

	if err := start(config, args[0], args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		}
		log.Printf("%s: %v", args[0], err)
		os.Exit(1)
	}
}

// start runs one action. Components are closed before it returns.
func start(config app.Config, action string, params []string) error {
	ctx := context.Background()
	comps, err := app.NewComponents(ctx, config)
	if err != nil {
		return fmt.Errorf("cannot create components: %w", err)
	}
	defer comps.Close()

	s, err := tokenmanager.New(&tokenmanager.Settings{}, comps.Session, comps.Chain, comps.Storage, comps.Ledger, comps.Feed)
	if err != nil {
		return fmt.Errorf("cannot create token manager: %w", err)
	}
	defer s.Close()

	if _, err := s.Connect(ctx, &tokenmanager.ConnectRequest{}); err != nil {
		printNotifications(comps.Feed)
		return fmt.Errorf("cannot connect wallet: %w", err)
	}

	err = run(ctx, s, action, params)
	printNotifications(comps.Feed)
	return err
}

func needArgs(params []string, n int) error {
	if len(params) < n {
		return fmt.Errorf("%w: expected %d parameters, got %d", errUsage, n, len(params))
	}
	return nil
}

func parseMint(s string) (common.Address, error) {
	mint, err := common.AddressFromString(s)
	if err != nil {
		return mint, fmt.Errorf("bad mint address %q: %w", s, err)
	}
	return mint, nil
}

func run(ctx context.Context, s *tokenmanager.Server, action string, params []string) error {
	switch action {
	case actionWallet:
		res, err := s.Wallet(ctx, &tokenmanager.WalletRequest{})
		if err != nil {
			return err
		}
		fmt.Printf("Address: %s\nBalance: %s SOL\n", res.Address, res.UIBalance)
	case actionQuote:
		if err := needArgs(params, 1); err != nil {
			return err
		}
		size, err := strconv.Atoi(params[0])
		if err != nil {
			return fmt.Errorf("cannot parse size '%s': %w", params[0], err)
		}
		res, err := s.StorageQuote(ctx, &tokenmanager.StorageQuoteRequest{Size: size})
		if err != nil {
			return err
		}
		fmt.Printf("Price: %d lamports\nLoaded: %d lamports\n", res.Price, res.Balance)
	case actionCreate:
		if err := needArgs(params, 6); err != nil {
			return err
		}
		image, err := os.ReadFile(params[4])
		if err != nil {
			return fmt.Errorf("cannot read image: %w", err)
		}
		req := &tokenmanager.CreateTokenRequest{
			Name:        params[0],
			Symbol:      params[1],
			Decimals:    params[2],
			Supply:      params[3],
			Image:       image,
			Description: strings.Join(params[5:], " "),
		}
		res, err := s.CreateToken(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("Mint: %s\nTransaction: %s\nImage: %s\nMetadata: %s\n", res.Mint, res.Signature, res.ImageURL, res.MetadataURL)
	case actionList:
		res, err := s.ListTokens(ctx, &tokenmanager.ListTokensRequest{})
		if err != nil {
			return err
		}
		printTokens(res.Tokens)
	case actionBurn:
		if err := needArgs(params, 2); err != nil {
			return err
		}
		mint, err := parseMint(params[0])
		if err != nil {
			return err
		}
		res, err := s.BurnTokens(ctx, &tokenmanager.BurnTokensRequest{
			Mint:   mint,
			Amount: params[1],
		})
		if err != nil {
			return err
		}
		fmt.Printf("Transaction: %s\n", res.Signature)
		printTokens([]common.TokenReference{res.Token})
	case actionUpdate:
		if err := needArgs(params, 4); err != nil {
			return err
		}
		mint, err := parseMint(params[0])
		if err != nil {
			return err
		}
		res, err := s.UpdateMetadata(ctx, &tokenmanager.UpdateMetadataRequest{
			Mint:   mint,
			Name:   params[1],
			Symbol: params[2],
			URL:    params[3],
		})
		if err != nil {
			return err
		}
		fmt.Printf("Transaction: %s\n", res.Signature)
	case actionAuthorities:
		res, err := s.ListAuthorities(ctx, &tokenmanager.ListAuthoritiesRequest{})
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Authority", "Mint"})
		for _, mint := range res.MintAuthority {
			t.AppendRow(table.Row{common.MintAuthority, mint})
		}
		for _, mint := range res.FreezeAuthority {
			t.AppendRow(table.Row{common.FreezeAuthority, mint})
		}
		t.Render()
	case actionRevoke:
		if err := needArgs(params, 2); err != nil {
			return err
		}
		mint, err := parseMint(params[0])
		if err != nil {
			return err
		}
		res, err := s.RevokeAuthority(ctx, &tokenmanager.RevokeAuthorityRequest{
			Mint: mint,
			Kind: common.AuthorityKind(params[1]),
		})
		if err != nil {
			return err
		}
		if !res.AlreadyDisabled {
			fmt.Printf("Transaction: %s\n", res.Signature)
		}
	case actionHistory:
		res, err := s.History(ctx, &tokenmanager.HistoryRequest{})
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Created", "Name", "Symbol", "Mint", "Status", "Error"})
		for _, c := range res.Creations {
			mint := ""
			if !c.Mint.IsZero() {
				mint = c.Mint.String()
			}
			t.AppendRow(table.Row{c.CreatedAt.Format("2006-01-02 15:04:05"), c.Name, c.Symbol, mint, c.Status, c.Error})
		}
		t.Render()
	default:
		return fmt.Errorf("%w: unknown action %q", errUsage, action)
	}
	return nil
}

func printTokens(tokens []common.TokenReference) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Mint", "Name", "Symbol", "Amount", "Decimals"})
	for _, tok := range tokens {
		t.AppendRow(table.Row{tok.Mint, tok.Name, tok.Symbol, tok.UIAmount, tok.Decimals})
	}
	t.Render()
}

func printNotifications(feed *notify.Feed) {
	notifications := feed.Since(0)
	if len(notifications) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stderr)
	t.AppendHeader(table.Row{"Time", "Status", "Message"})
	for _, n := range notifications {
		t.AppendRow(table.Row{n.Time.Format("15:04:05"), n.Status, n.Message})
	}
	t.Render()
}
