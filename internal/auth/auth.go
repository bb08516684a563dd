// Package auth signs users in against local accounts kept in the document
// store and persists the session token to a file.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"lifesync/internal/core"
	"lifesync/internal/log"
	"lifesync/internal/store"
)

// CollectionAccounts is the global collection of local accounts.
const CollectionAccounts = "accounts"

type User struct {
	ID    string
	Email string
}

// Authenticator is the sign-in surface the apps depend on.
type Authenticator interface {
	CurrentUser() (User, bool)
	// OnAuthChange calls fn on every sign-in and sign-out until the returned
	// func is called.
	OnAuthChange(fn func(u User, signedIn bool)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) (User, error)
	SignUp(ctx context.Context, email, password string) (User, error)
	SignOut(ctx context.Context) error
}

var ErrEmailTaken = errors.New("email already registered")

type Options struct {
	SessionFile string
	BcryptCost  int
	Logger      *log.Logger
}

// Local implements Authenticator with bcrypt-hashed accounts.
type Local struct {
	store  store.Store
	tokens *TokenManager
	file   string
	cost   int
	logger *log.Logger

	mu        sync.Mutex
	current   *User
	listeners map[int]func(User, bool)
	nextID    int
}

// NewLocal restores a still-valid session from opts.SessionFile if present.
func NewLocal(st store.Store, tokens *TokenManager, opts Options) *Local {
	l := &Local{
		store:     st,
		tokens:    tokens,
		file:      opts.SessionFile,
		cost:      opts.BcryptCost,
		logger:    opts.Logger,
		listeners: map[int]func(User, bool){},
	}
	if l.cost == 0 {
		l.cost = bcrypt.DefaultCost
	}
	if l.logger == nil {
		l.logger = log.Discard()
	}
	l.logger = l.logger.WithComponent(log.ComponentAuth)
	l.restore()
	return l
}

type sessionFile struct {
	Token string `json:"token"`
}

func (l *Local) restore() {
	if l.file == "" {
		return
	}
	raw, err := os.ReadFile(l.file)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("session file unreadable", log.FieldError, err)
		}
		return
	}
	var sf sessionFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		l.logger.Warn("session file corrupt", log.FieldError, err)
		return
	}
	u, err := l.tokens.Verify(sf.Token)
	if err != nil {
		l.logger.Info("stored session expired", log.FieldError, err)
		_ = os.Remove(l.file)
		return
	}
	l.current = &u
}

func (l *Local) CurrentUser() (User, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return User{}, false
	}
	return *l.current, true
}

func (l *Local) OnAuthChange(fn func(User, bool)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.listeners, id)
			l.mu.Unlock()
		})
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	var v core.ValidationError
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		v.Add("email", "must be an email address")
	}
	if len(password) < 8 {
		v.Add("password", "must be at least 8 characters")
	}
	if len(password) > 72 {
		v.Add("password", "must be at most 72 bytes")
	}
	return v.Err()
}

func (l *Local) SignUp(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return User{}, err
	}
	existing, err := l.store.List(ctx, CollectionAccounts, store.Eq("email", email))
	if err != nil {
		return User{}, fmt.Errorf("look up account: %w", err)
	}
	if len(existing) > 0 {
		return User{}, ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := l.store.Create(ctx, CollectionAccounts, map[string]any{
		"email":        email,
		"passwordHash": string(hash),
	})
	if err != nil {
		return User{}, fmt.Errorf("create account: %w", err)
	}
	u := User{ID: id, Email: email}
	l.logger.InfoContext(ctx, "account created", log.FieldUserID, id)
	return u, l.begin(u)
}

func (l *Local) SignIn(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	docs, err := l.store.List(ctx, CollectionAccounts, store.Eq("email", email))
	if err != nil {
		return User{}, fmt.Errorf("look up account: %w", err)
	}
	if len(docs) == 0 {
		// Same cost as a real check so missing accounts are not cheaper.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return User{}, core.ErrUnauthorized
	}
	hash, _ := docs[0].Data["passwordHash"].(string)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		l.logger.WarnContext(ctx, "sign-in rejected", log.FieldUserID, docs[0].ID)
		return User{}, core.ErrUnauthorized
	}
	u := User{ID: docs[0].ID, Email: email}
	return u, l.begin(u)
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("lifesync-placeholder"), bcrypt.MinCost)

func (l *Local) SignOut(ctx context.Context) error {
	l.mu.Lock()
	u := l.current
	l.current = nil
	l.mu.Unlock()
	if l.file != "" {
		if err := os.Remove(l.file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session: %w", err)
		}
	}
	if u != nil {
		l.emit(*u, false)
	}
	return nil
}

func (l *Local) begin(u User) error {
	token, err := l.tokens.Issue(u)
	if err != nil {
		return err
	}
	if l.file != "" {
		if err := writeSession(l.file, token); err != nil {
			return err
		}
	}
	l.mu.Lock()
	l.current = &u
	l.mu.Unlock()
	l.emit(u, true)
	return nil
}

func (l *Local) emit(u User, signedIn bool) {
	l.mu.Lock()
	fns := make([]func(User, bool), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(u, signedIn)
	}
}

// writeSession replaces the session file atomically with mode 0600.
func writeSession(path, token string) error {
	raw, err := json.Marshal(sessionFile{Token: token})
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
