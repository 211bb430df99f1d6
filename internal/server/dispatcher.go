package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewline/internal/config"
	"crewline/internal/domain"
	"crewline/internal/engine"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchTimeout  = 5 * time.Second
	defaultDispatchBatch    = 100
)

// journalDispatcher tails the change journal and posts new entries to the
// configured webhooks. Each hook keeps its own cursor; a failed delivery
// leaves the cursor where it was and the entry is retried next tick.
type journalDispatcher struct {
	engine  engine.Engine
	hooks   []config.WebhookConfig
	client  *http.Client
	logger  *zap.Logger
	mu      sync.Mutex
	cursors map[int]int64
}

func startJournalDispatcher(e engine.Engine, logger *zap.Logger) {
	if e.Config == nil || len(e.Config.Notify.Webhooks) == 0 {
		return
	}
	d := &journalDispatcher{
		engine:  e,
		hooks:   e.Config.Notify.Webhooks,
		client:  &http.Client{Timeout: defaultDispatchTimeout},
		logger:  logger,
		cursors: make(map[int]int64),
	}
	go d.run()
}

func (d *journalDispatcher) run() {
	ticker := time.NewTicker(defaultDispatchInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		<-ticker.C
	}
}

func (d *journalDispatcher) dispatchAll() {
	for i, hook := range d.hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchHook(i, hook)
	}
}

func (d *journalDispatcher) dispatchHook(idx int, hook config.WebhookConfig) {
	ctx := context.Background()
	cursor := d.cursorFor(idx)
	entries, err := d.engine.Repo.EntriesAfter(ctx, defaultDispatchBatch, cursor)
	if err != nil {
		d.logger.Warn("webhook: fetch journal failed", zap.Error(err))
		return
	}
	filter := newTypeFilter(hook.Types)
	for _, entry := range entries {
		if !filter.match(entry.Type) {
			d.setCursor(idx, entry.ID)
			continue
		}
		if err := d.postEntry(ctx, hook, entry); err != nil {
			d.logger.Warn("webhook: deliver failed",
				zap.String("url", hook.URL),
				zap.Int64("entry_id", entry.ID),
				zap.Error(err))
			return
		}
		d.setCursor(idx, entry.ID)
	}
}

func (d *journalDispatcher) cursorFor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	// new hooks start at the journal tip, not from history
	cur, err := d.engine.Repo.LatestEntryID(context.Background())
	if err != nil {
		d.logger.Warn("webhook: init cursor failed", zap.Error(err))
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *journalDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type journalEventBody struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *journalDispatcher) postEntry(ctx context.Context, hook config.WebhookConfig, entry domain.JournalEntry) error {
	payload := json.RawMessage("{}")
	if entry.Payload != "" && json.Valid([]byte(entry.Payload)) {
		payload = json.RawMessage(entry.Payload)
	}
	data, err := json.Marshal(journalEventBody{
		ID:         entry.ID,
		Type:       entry.Type,
		EntityKind: entry.EntityKind,
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		TS:         entry.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		timeout := time.Duration(hook.TimeoutSeconds) * time.Second
		if timeout != d.client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Crewline-Type", entry.Type)
	req.Header.Set("X-Crewline-Delivery", uuid.NewString())
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Crewline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type typeFilter struct {
	all bool
	set map[string]struct{}
}

func newTypeFilter(types []string) typeFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		key := strings.TrimSpace(t)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return typeFilter{all: true}
	}
	return typeFilter{set: set}
}

func (f typeFilter) match(t string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[t]
	return ok
}
