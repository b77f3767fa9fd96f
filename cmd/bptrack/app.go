package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jwulff/bptrack/internal/api"
	"github.com/jwulff/bptrack/internal/config"
	"github.com/jwulff/bptrack/internal/logging"
	"github.com/jwulff/bptrack/internal/monitor"
	"github.com/jwulff/bptrack/internal/storage"
	"github.com/jwulff/bptrack/internal/storage/sqlite"
)

// requestTimeout bounds a single command's backend calls.
const requestTimeout = 60 * time.Second

var errNotSignedIn = errors.New("not signed in, run 'bptrack login' first")

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   storage.Store
	client  *api.Client
	session *storage.Session
	stdin   *bufio.Reader
}

func newApp() (*app, error) {
	if _, err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := sqlite.NewFileStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(api.Config{
		BaseURL:    cfg.API.URL,
		APIKey:     cfg.API.APIKey,
		Timeout:    cfg.API.Timeout,
		RetryCount: 2,
	}, logger)

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		client: client,
		stdin:  bufio.NewReader(os.Stdin),
	}

	session, err := store.GetSession(context.Background())
	switch {
	case err == nil:
		a.session = session
		client.SetToken(session.Token)
	case !storage.IsNotFound(err):
		logger.Warn("failed to load session", zap.Error(err))
	}
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) requireSession() error {
	if a.session == nil {
		return errNotSignedIn
	}
	return nil
}

func (a *app) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// saveSession stores the token and user after a login or profile change.
func (a *app) saveSession(ctx context.Context, token string, user api.User) error {
	a.session = storage.NewSession(token, sessionUser(user))
	return a.store.SaveSession(ctx, a.session)
}

func sessionUser(u api.User) storage.SessionUser {
	return storage.SessionUser{
		ID:          u.ID,
		FullName:    u.FullName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Role:        u.Person().Role,
		DateOfBirth: u.DateOfBirth.Ptr(),
	}
}

// monitor loads the cached readings and refreshes them from the backend.
// When the backend is unreachable the cached set is used.
func (a *app) monitor(ctx context.Context) (*monitor.Monitor, error) {
	m := monitor.New(a.client, a.store, a.logger, monitor.Options{
		Person: a.session.User.Person(),
		Owner:  strconv.FormatInt(a.session.User.ID, 10),
	})

	cached, err := m.Restore(ctx)
	if err != nil {
		a.logger.Warn("failed to restore cached readings", zap.Error(err))
	}

	if err := m.Refresh(ctx); err != nil {
		if api.IsUnauthorized(err) {
			return nil, fmt.Errorf("session expired, run 'bptrack login' again: %w", err)
		}
		if !cached {
			return nil, err
		}
		fmt.Println("Warning: backend unreachable, showing cached readings")
	}
	return m, nil
}

// readSecret returns the value of env, or prompts for a line on stdin.
func (a *app) readSecret(env, prompt string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	return a.readLine(prompt)
}

func (a *app) readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := a.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// contact splits an identifier into an email or a phone number.
func contact(id string) (email, phone string) {
	if strings.Contains(id, "@") {
		return id, ""
	}
	return "", id
}

func parseID(args []string, what string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%s required", what)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, args[0])
	}
	return id, nil
}
