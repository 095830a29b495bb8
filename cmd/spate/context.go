package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"spate/internal/auth"
	"spate/internal/client"
	"spate/internal/config"
	"spate/internal/wire"
)

type commandContext struct {
	addressFlag  *string
	configFlag   *string
	usernameFlag *string
	passwordFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addressFlag, configFlag, usernameFlag, passwordFlag *string) *commandContext {
	return &commandContext{
		addressFlag:  addressFlag,
		configFlag:   configFlag,
		usernameFlag: usernameFlag,
		passwordFlag: passwordFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) address() (string, error) {
	if c.addressFlag != nil && *c.addressFlag != "" {
		return *c.addressFlag, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.Network.Listen, nil
}

// credentials resolves the account to log in with: explicit flags first,
// then the generated localclient entry.
func (c *commandContext) credentials() (string, string, error) {
	if c.usernameFlag != nil && *c.usernameFlag != "" {
		if c.passwordFlag == nil || *c.passwordFlag == "" {
			return "", "", errors.New("--password is required with --username")
		}
		return *c.usernameFlag, *c.passwordFlag, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", "", err
	}
	authenticator, err := auth.Open(cfg.AuthFilePath())
	if err != nil {
		return "", "", fmt.Errorf("read accounts file: %w", err)
	}
	account, ok := authenticator.LocalCredentials()
	if !ok {
		return "", "", errors.New("no local account; pass --username and --password")
	}
	return account.Username, account.Password, nil
}

// connect dials the daemon and authenticates.
func (c *commandContext) connect(ctx context.Context, onEvent func(*wire.Event)) (*client.Client, error) {
	addr, err := c.address()
	if err != nil {
		return nil, err
	}

	var certFile string
	if cfg, cfgErr := c.ensureConfig(); cfgErr == nil {
		candidate, _ := cfg.CertPaths()
		if _, statErr := os.Stat(candidate); statErr == nil {
			certFile = candidate
		}
	}

	conn, err := client.Dial(ctx, client.Options{
		Addr:           addr,
		ServerCertFile: certFile,
		Compression:    true,
		OnEvent:        onEvent,
	})
	if err != nil {
		return nil, err
	}

	username, password, err := c.credentials()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Login(ctx, username, password); err != nil {
		conn.Close()
		return nil, fmt.Errorf("login as %s: %w", username, err)
	}
	return conn, nil
}
