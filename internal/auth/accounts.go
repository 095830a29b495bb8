package auth

import (
	"bufio"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocalAccount is the account written on first start so tooling on the same
// host can always reach the daemon.
const LocalAccount = "localclient"

// ErrBadCredentials is returned for unknown usernames and wrong passwords
// alike, so callers cannot probe which accounts exist.
var ErrBadCredentials = errors.New("invalid credentials")

// Account is one accounts-file entry.
type Account struct {
	Username string
	Password string
	Level    Level
}

// Authenticator validates credentials against the accounts file. The file is
// one "username:password:level" entry per line; blank lines and lines opening
// with '#' are skipped.
type Authenticator struct {
	path string

	mu       sync.RWMutex
	accounts map[string]Account
}

// Open loads the accounts file at path, creating it with a generated
// localclient entry when it does not exist yet.
func Open(path string) (*Authenticator, error) {
	a := &Authenticator{path: path, accounts: make(map[string]Account)}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := a.writeInitialFile(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat accounts file: %w", err)
	}
	if err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload re-reads the accounts file, replacing the in-memory table
// atomically. Sessions already authenticated keep their level.
func (a *Authenticator) Reload() error {
	file, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("open accounts file: %w", err)
	}
	defer file.Close()

	accounts := make(map[string]Account)
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			return fmt.Errorf("accounts file %s line %d: expected username:password:level", a.path, lineNo)
		}
		username := strings.TrimSpace(parts[0])
		if username == "" {
			return fmt.Errorf("accounts file %s line %d: empty username", a.path, lineNo)
		}
		level, err := ParseLevel(parts[2])
		if err != nil {
			return fmt.Errorf("accounts file %s line %d: %w", a.path, lineNo, err)
		}
		accounts[username] = Account{Username: username, Password: parts[1], Level: level}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read accounts file: %w", err)
	}

	a.mu.Lock()
	a.accounts = accounts
	a.mu.Unlock()
	return nil
}

// Authenticate checks the credentials and returns the account's level.
func (a *Authenticator) Authenticate(username, password string) (Level, error) {
	a.mu.RLock()
	account, ok := a.accounts[username]
	a.mu.RUnlock()
	if !ok {
		return LevelNone, ErrBadCredentials
	}
	if subtle.ConstantTimeCompare([]byte(account.Password), []byte(password)) != 1 {
		return LevelNone, ErrBadCredentials
	}
	return account.Level, nil
}

// LocalCredentials returns the localclient account for same-host tooling, or
// false when the file does not define one.
func (a *Authenticator) LocalCredentials() (Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	account, ok := a.accounts[LocalAccount]
	return account, ok
}

// Path returns the accounts file location.
func (a *Authenticator) Path() string {
	return a.path
}

func (a *Authenticator) writeInitialFile() error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("ensure accounts dir: %w", err)
	}
	password, err := randomPassword()
	if err != nil {
		return err
	}
	contents := fmt.Sprintf("# spate accounts: username:password:level\n%s:%s:%s\n", LocalAccount, password, LevelAdmin)
	if err := os.WriteFile(a.path, []byte(contents), 0o600); err != nil {
		return fmt.Errorf("write accounts file: %w", err)
	}
	return nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
