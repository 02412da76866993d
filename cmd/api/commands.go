package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"confidential-revote/api"
	"confidential-revote/config"
	"confidential-revote/encryption"
	"confidential-revote/service"
	"confidential-revote/storage"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if v := c.String("listen"); v != "" {
		cfg.Listen = v
	}
	if v := c.String("backend"); v != "" {
		cfg.Backend = v
	}
	if v := c.String("data"); v != "" {
		cfg.DataDir = v
	}
	return cfg, cfg.Validate()
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	fee, _ := cfg.Fee()
	ballotType, _ := cfg.BallotType()

	store, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	keyPath := ""
	if cfg.Backend != storage.BackendMemory {
		keyPath = filepath.Join(cfg.DataDir, "network_key.json")
	}
	key, err := encryption.LoadOrGenerateNetworkKey(keyPath, cfg.KeyBits)
	if err != nil {
		return err
	}
	scheme := encryption.NewPaillierAdapter(key.N.BitLen(), key)

	vs, err := service.NewVotingService(store, scheme, service.Options{
		MinimumFee: fee,
		BallotType: ballotType,
		Difficulty: cfg.Difficulty,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(vs, cfg.MaxClockSkew.Duration).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting poll API on", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return xerrors.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		log.Info("Received", sig, "- shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func keygen(c *cli.Context) error {
	kp, err := encryption.GenerateKeypair()
	if err != nil {
		return err
	}
	fmt.Println("private:", kp.Hex())
	fmt.Println("public: ", hexutil.Encode(kp.PublicKey()))
	fmt.Println("address:", kp.Address().Hex())
	return nil
}

func encrypt(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("please give the option index to encrypt")
	}
	option, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return xerrors.Errorf("bad option index: %w", err)
	}
	raw, err := hexutil.Decode(c.String("network-key"))
	if err != nil {
		return xerrors.Errorf("bad network key: %w", err)
	}
	pub, err := encryption.ParseNetworkKey(raw)
	if err != nil {
		return err
	}
	typ, err := encryption.TypeForWidth(c.Int("width"))
	if err != nil {
		return err
	}

	ct, err := encryption.EncryptInput(pub, option, typ)
	if err != nil {
		return err
	}
	fmt.Println(hexutil.Encode(ct.Bytes()))
	return nil
}

func decrypt(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("please give the sealed value as hex")
	}
	kp, err := encryption.KeypairFromHex(strings.TrimPrefix(c.String("key"), "0x"))
	if err != nil {
		return err
	}
	sealed, err := hexutil.Decode(c.Args().First())
	if err != nil {
		return xerrors.Errorf("bad sealed value: %w", err)
	}
	value, typ, err := kp.Decrypt(sealed)
	if err != nil {
		return err
	}
	fmt.Printf("%d (%s)\n", value, typ)
	return nil
}
