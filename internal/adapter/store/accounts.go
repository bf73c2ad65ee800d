// Package store loads the account and proxy populations from their
// flat files and owns the cookie cache.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kestrelworks/aviary/internal/core/domain"
	"github.com/kestrelworks/aviary/internal/logger"
)

// Accounts line format, colon separated with at least 7 fields:
//
//	username:password:email:email_password:2fa:ct0:auth_token
//
// The 2FA secret may itself contain colons (otpauth:// URIs), so it is
// everything between the fixed head fields and the trailing ct0/auth_token
// pair, re-joined.
const minAccountFields = 7

// AccountStore owns the Account records and the cookie cache file.
type AccountStore struct {
	mu           sync.RWMutex
	accountsPath string
	cookiesPath  string
	accounts     []*domain.Account
	logger       *logger.StyledLogger
}

func NewAccountStore(accountsPath, cookiesPath string, logger *logger.StyledLogger) *AccountStore {
	return &AccountStore{
		accountsPath: accountsPath,
		cookiesPath:  cookiesPath,
		logger:       logger,
	}
}

// Load reads the accounts flat-file, skipping blanks, comments and
// malformed lines.
func (s *AccountStore) Load() error {
	file, err := os.Open(s.accountsPath)
	if err != nil {
		return fmt.Errorf("failed to open accounts file %s: %w", s.accountsPath, err)
	}
	defer func() { _ = file.Close() }()

	var accounts []*domain.Account
	lineNo := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		account, err := ParseAccountLine(line)
		if err != nil {
			s.logger.Warn("Skipping malformed account line", "line", lineNo, "error", err)
			continue
		}
		accounts = append(accounts, account)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read accounts file: %w", err)
	}

	s.mu.Lock()
	s.accounts = accounts
	s.mu.Unlock()

	s.logger.InfoWithCount("Loaded accounts", len(accounts), "path", s.accountsPath)
	return nil
}

// ParseAccountLine parses one record. The ct0 and auth_token are the last
// two fields; the 2FA secret is fields 4..n-3 re-joined on ':'.
func ParseAccountLine(line string) (*domain.Account, error) {
	fields := strings.Split(line, ":")
	if len(fields) < minAccountFields {
		return nil, fmt.Errorf("expected at least %d fields, got %d", minAccountFields, len(fields))
	}

	n := len(fields)
	account := &domain.Account{
		Username:        strings.TrimSpace(fields[0]),
		Password:        fields[1],
		Email:           fields[2],
		EmailPassword:   fields[3],
		TwoFactorSecret: normalizeTwoFactor(strings.Join(fields[4:n-2], ":")),
		CT0:             strings.TrimSpace(fields[n-2]),
		AuthToken:       strings.TrimSpace(fields[n-1]),
	}

	if account.Username == "" {
		return nil, fmt.Errorf("empty username")
	}
	return account, nil
}

// FormatAccountLine renders an account back to its flat-file shape.
func FormatAccountLine(a *domain.Account) string {
	return strings.Join([]string{
		a.Username, a.Password, a.Email, a.EmailPassword,
		a.TwoFactorSecret, a.CT0, a.AuthToken,
	}, ":")
}

// normalizeTwoFactor trims the raw secret and unwraps otpauth:// URIs to
// the part after the final slash. Empty means absent.
func normalizeTwoFactor(raw string) string {
	secret := strings.TrimSpace(raw)
	if idx := strings.LastIndex(secret, "/"); idx >= 0 {
		secret = secret[idx+1:]
	}
	return secret
}

// ListAccounts returns a defensive copy of the account population.
func (s *AccountStore) ListAccounts() []*domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Account, len(s.accounts))
	copy(result, s.accounts)
	return result
}

// Count returns the number of loaded accounts.
func (s *AccountStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// LoadCookies returns the cached cookie set for a username, or nil.
func (s *AccountStore) LoadCookies(username string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.readCookieFile()
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if entry.Username == username {
			return entry.Cookies
		}
	}
	return nil
}

// SaveCookies upserts the account's cookie entry and rewrites the cache
// file. Writes are serialised through the store's lock; last write wins.
func (s *AccountStore) SaveCookies(account *domain.Account, cookies []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readCookieFile()
	if err != nil {
		return err
	}

	updated := domain.CookieEntry{
		Username: account.Username,
		Password: account.Password,
		Email:    account.Email,
		TwoFA:    account.TwoFactorSecret,
		Cookies:  cookies,
	}

	found := false
	for i := range entries {
		if entries[i].Username == account.Username {
			entries[i] = updated
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, updated)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookie cache: %w", err)
	}
	if err := os.WriteFile(s.cookiesPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookie cache %s: %w", s.cookiesPath, err)
	}
	return nil
}

func (s *AccountStore) readCookieFile() ([]domain.CookieEntry, error) {
	data, err := os.ReadFile(s.cookiesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cookie cache %s: %w", s.cookiesPath, err)
	}

	var entries []domain.CookieEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode cookie cache %s: %w", s.cookiesPath, err)
	}
	return entries, nil
}
