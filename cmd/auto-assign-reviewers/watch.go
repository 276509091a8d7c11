package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/cache"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"

	"github.com/codeGROOVE-dev/sprinkler/pkg/client"
)

const (
	eventChannelSize     = 100
	processedWindow      = 10 * time.Minute // ignore repeat events for a PR this long
	processedSweep       = time.Minute
	maxReconnectAttempts = 100
	reconnectBackoff     = 30 * time.Second
	maxReconnectBackoff  = 5 * time.Minute
)

// tokenFunc returns a credential for the event stream.
type tokenFunc func(ctx context.Context) (string, error)

// watcher assigns reviewers to pull requests as sprinkler reports them.
type watcher struct {
	lastConnectedAt time.Time
	lastEventAt     time.Time
	assigner        *assigner
	token           tokenFunc
	processed       *cache.Cache[time.Time]
	events          chan prRef
	owner           string
	repo            string
	timeout         time.Duration // per pull request; zero means none
	reconnects      int
	mu              sync.RWMutex
	connected       bool
}

func newWatcher(a *assigner, timeout time.Duration, token tokenFunc) *watcher {
	return &watcher{
		assigner:  a,
		token:     token,
		timeout:   timeout,
		processed: cache.New[time.Time](processedWindow),
		events:    make(chan prRef, eventChannelSize),
		owner:     a.cfg.Owner,
		repo:      a.cfg.Repo,
	}
}

// run blocks until ctx is cancelled or the event stream cannot be restored.
func (w *watcher) run(ctx context.Context) error {
	slog.InfoContext(ctx, "Starting event monitor", "component", "sprinkler", "owner", w.owner, "repo", w.repo)

	go w.processed.RunCleanup(ctx, processedSweep)
	go w.processEvents(ctx)
	return w.manageConnection(ctx)
}

// manageConnection restarts the sprinkler client whenever it gives up.
// The client reconnects internally; this loop only handles fatal exits.
func (w *watcher) manageConnection(ctx context.Context) error {
	for {
		err := w.connect(ctx)
		if ctx.Err() != nil {
			slog.Info("Context cancelled, stopping connection manager", "component", "sprinkler", "owner", w.owner)
			return nil
		}

		w.mu.Lock()
		if err == nil {
			w.reconnects = 0
		} else {
			w.reconnects++
		}
		attempts := w.reconnects
		w.mu.Unlock()

		if attempts >= maxReconnectAttempts {
			return fmt.Errorf("event stream: giving up after %d reconnection attempts: %w", attempts, err)
		}

		backoff := min(reconnectBackoff*time.Duration(attempts), maxReconnectBackoff)
		if err == nil {
			backoff = 5 * time.Second
		}
		slog.Warn("WebSocket client exited, will restart after backoff",
			"component", "sprinkler", "owner", w.owner, "attempt", attempts, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

// connect runs one sprinkler client until it stops.
func (w *watcher) connect(ctx context.Context) error {
	config := client.Config{
		ServerURL:    "wss://" + client.DefaultServerAddress + "/ws",
		Organization: w.owner,
		TokenProvider: func() (string, error) {
			token, err := w.token(ctx)
			if err != nil {
				return "", fmt.Errorf("failed to get token: %w", err)
			}
			return token, nil
		},
		EventTypes:     []string{"pull_request"},
		UserEventsOnly: false,
		Verbose:        false,
		NoReconnect:    false,
		OnConnect: func() {
			w.mu.Lock()
			w.connected = true
			w.lastConnectedAt = time.Now()
			w.mu.Unlock()
			slog.Info("WebSocket connected", "component", "sprinkler", "owner", w.owner)
		},
		OnDisconnect: func(err error) {
			w.mu.Lock()
			wasConnected := w.connected
			w.connected = false
			w.mu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) && wasConnected {
				slog.Warn("WebSocket disconnected", "component", "sprinkler", "owner", w.owner, "error", err)
			}
		},
		OnEvent: w.handleEvent,
	}

	wsClient, err := client.New(config)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	start := time.Now()
	if err := wsClient.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("WebSocket client stopped with error", "component", "sprinkler", "owner", w.owner,
			"uptime", time.Since(start).Round(time.Second), "error", err)
		return err
	}
	return nil
}

// handleEvent filters and de-duplicates incoming events.
func (w *watcher) handleEvent(event client.Event) {
	if event.Type != "pull_request" {
		return
	}

	ref, err := parsePRURL(event.URL)
	if err != nil {
		slog.Warn("Ignoring event with unparseable URL", "component", "sprinkler", "url", event.URL, "error", err)
		return
	}
	if ref.owner != w.owner || ref.repo != w.repo {
		slog.Debug("Ignoring event for another repository", "component", "sprinkler", "url", event.URL)
		return
	}

	now := time.Now()
	w.mu.Lock()
	w.lastEventAt = now
	w.mu.Unlock()

	if _, seen := w.processed.Get(ref.key()); seen {
		slog.Debug("Ignoring recently processed PR", "component", "sprinkler", "url", event.URL)
		return
	}
	w.processed.Set(ref.key(), now)

	select {
	case w.events <- ref:
	default:
		slog.Warn("Event channel full, dropping event", "component", "sprinkler", "url", event.URL)
	}
}

func (w *watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ref := <-w.events:
			w.processEvent(ctx, ref)
		}
	}
}

// processEvent assigns a reviewer to one pull request if it still needs one.
func (w *watcher) processEvent(ctx context.Context, ref prRef) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	err := w.assignIfNeeded(ctx, ref)
	if err != nil {
		// Let a later event try again.
		w.processed.Delete(ref.key())
		slog.Error("Failed to process PR", "component", "sprinkler", "pr", ref.number,
			"elapsed", time.Since(start).Round(time.Millisecond), "error", err)
		return
	}
	slog.Info("Processed PR", "component", "sprinkler", "pr", ref.number, "elapsed", time.Since(start).Round(time.Millisecond))
}

func (w *watcher) assignIfNeeded(ctx context.Context, ref prRef) error {
	var pr *types.PullRequest
	err := w.assigner.coord.Do(ctx, "fetch pull request", func(ctx context.Context) error {
		var err error
		pr, err = w.assigner.prs.PullRequest(ctx, ref.owner, ref.repo, ref.number)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch PR: %w", err)
	}

	if reason := skipReason(pr); reason != "" {
		slog.Info("Skipping PR", "component", "sprinkler", "pr", ref.number, "reason", reason)
		return nil
	}
	_, err = w.assigner.assign(ctx, pr.Number, pr.Author)
	return err
}

// skipReason explains why pr should not get a reviewer, or returns "".
func skipReason(pr *types.PullRequest) string {
	switch {
	case pr.State != "" && pr.State != "open":
		return "not open"
	case pr.Draft:
		return "draft"
	case len(pr.Reviewers) > 0:
		return "already has requested reviewers"
	default:
		return ""
	}
}

// healthStatus returns the current state of the monitor.
func (w *watcher) healthStatus() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := map[string]any{
		"status":             "ok",
		"repository":         w.owner + "/" + w.repo,
		"is_connected":       w.connected,
		"reconnect_attempts": w.reconnects,
		"recent_prs":         w.processed.Len(),
	}
	if !w.lastConnectedAt.IsZero() {
		status["last_connected_at"] = w.lastConnectedAt
	}
	if !w.lastEventAt.IsZero() {
		status["last_event_at"] = w.lastEventAt
	}
	return status
}
