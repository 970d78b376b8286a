package sink

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
)

const webhookTimeout = 5 * time.Second

// Webhook payload actions.
const (
	HookRegister = "register"
	HookUpdate   = "update"
)

// HookResource is the wire form of an added resource.
type HookResource struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
	Digest   string `json:"digest"`
}

// HookPayload is the JSON body posted to the webhook.
type HookPayload struct {
	Scheme  string         `json:"scheme"`
	Action  string         `json:"action"`
	Added   []HookResource `json:"added"`
	Removed []string       `json:"removed"`
}

// Webhook posts every delta to URL. Delivery is asynchronous so a slow
// endpoint never stalls the scan loop.
type Webhook struct {
	URL    string
	Token  string
	Logger *logging.Logger
	Client *http.Client

	wg sync.WaitGroup
}

// NewWebhook returns a Webhook posting to url with an optional bearer token.
func NewWebhook(url, token string, logger *logging.Logger) *Webhook {
	return &Webhook{
		URL:    url,
		Token:  token,
		Logger: logger,
		Client: &http.Client{Timeout: webhookTimeout},
	}
}

// RegisterResources implements resource.Installer.
func (w *Webhook) RegisterResources(scheme string, resources []resource.Resource) {
	w.post(registerPayload(scheme, resources))
}

// UpdateResources implements resource.Installer.
func (w *Webhook) UpdateResources(scheme string, toAdd []resource.Resource, toRemove []string) {
	w.post(updatePayload(scheme, toAdd, toRemove))
}

// Wait blocks until all in-flight deliveries have finished.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

func (w *Webhook) post(payload HookPayload) {
	if w.URL == "" {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.send(payload)
	}()
}

func (w *Webhook) send(payload HookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.Logger.Error("webhook marshal failed", logging.Err(err))
		return
	}

	req, err := http.NewRequest(http.MethodPost, w.URL, bytes.NewBuffer(body))
	if err != nil {
		w.Logger.Error("webhook request failed", logging.Err(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		w.Logger.Warn("webhook delivery failed", map[string]string{"url": w.URL, "error": err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		w.Logger.Warn("webhook rejected", map[string]string{
			"url":    w.URL,
			"status": strconv.Itoa(resp.StatusCode),
		})
	}
}

func registerPayload(scheme string, resources []resource.Resource) HookPayload {
	return HookPayload{Scheme: scheme, Action: HookRegister, Added: hookResources(resources), Removed: []string{}}
}

func updatePayload(scheme string, toAdd []resource.Resource, toRemove []string) HookPayload {
	removed := append([]string{}, toRemove...)
	return HookPayload{Scheme: scheme, Action: HookUpdate, Added: hookResources(toAdd), Removed: removed}
}

func hookResources(rs []resource.Resource) []HookResource {
	out := make([]HookResource, 0, len(rs))
	for _, r := range rs {
		out = append(out, HookResource{ID: r.ID, URL: r.URL, Type: r.Type, Priority: r.Priority, Digest: r.Digest})
	}
	return out
}
