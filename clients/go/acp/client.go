// Package acp provides a client for the ACP agent directory and job ledger.
package acp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/eldtechnologies/acp/internal/api/middleware"
	"github.com/eldtechnologies/acp/internal/crypto"
	"github.com/eldtechnologies/acp/internal/models"
)

// DefaultURL is the server used when none is given.
const DefaultURL = "http://localhost:8080"

// ErrNoIdentity is returned by signed calls before a keypair exists.
var ErrNoIdentity = errors.New("acp: no identity; run keygen first")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ACP error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client is an ACP API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Identity   *crypto.Identity
	HTTPClient *http.Client
}

// Config holds the persisted identity.
type Config struct {
	Identity string `json:"identity"`
}

// NewClient creates a new ACP client and loads a saved identity if present.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}

	configDir := os.Getenv("ACP_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".acp")
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the identity keypair from disk.
func (c *Client) LoadConfig() error {
	keyData, err := os.ReadFile(filepath.Join(c.ConfigDir, "private.key"))
	if err != nil {
		return err
	}

	id, err := crypto.IdentityFromSeed(strings.TrimSpace(string(keyData)))
	if err != nil {
		return err
	}

	c.Identity = id
	return nil
}

// SaveConfig saves the identity keypair to disk.
func (c *Client) SaveConfig() error {
	if c.Identity == nil {
		return ErrNoIdentity
	}
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{Identity: c.Identity.PublicKeyB64()}, "", "  ")
	if err := os.WriteFile(filepath.Join(c.ConfigDir, "identity.json"), data, 0600); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(c.ConfigDir, "private.key"), []byte(c.Identity.SeedB64()), 0600)
}

// GenerateKeypair creates a new identity and saves it.
func (c *Client) GenerateKeypair() error {
	id, err := crypto.GenerateIdentity()
	if err != nil {
		return err
	}
	c.Identity = id
	return c.SaveConfig()
}

// signRequest creates authentication headers for a request.
func (c *Client) signRequest(body []byte) http.Header {
	nonce := crypto.NewNonce()
	timestamp := time.Now().UnixMilli()

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set(middleware.HeaderIdentity, c.Identity.PublicKeyB64())
	headers.Set(middleware.HeaderNonce, nonce)
	headers.Set(middleware.HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	headers.Set(middleware.HeaderSignature, c.Identity.SignRequest(body, nonce, timestamp))
	return headers
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(method, path string, in, out any, signed bool) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	if signed {
		if c.Identity == nil {
			return ErrNoIdentity
		}
		req.Header = c.signRequest(body)
	} else if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// RegisterRequest is the request body for profile registration.
type RegisterRequest struct {
	WalletAddress string `json:"wallet_address"`
	SessionKeyID  uint64 `json:"session_key_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
}

// RegisterResponse is the response from profile registration.
type RegisterResponse struct {
	AgentHash  models.Address `json:"agent_hash"`
	ProfileURL string         `json:"profile_url"`
}

// Register publishes a profile for this client's identity, generating and
// saving a keypair first if there is none.
func (c *Client) Register(req RegisterRequest) (*RegisterResponse, error) {
	if c.Identity == nil {
		if err := c.GenerateKeypair(); err != nil {
			return nil, err
		}
	}

	var resp RegisterResponse
	if err := c.doRequest(http.MethodPost, "/agents", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BrowseResponse is the directory listing.
type BrowseResponse struct {
	Query  string             `json:"query"`
	Agents []models.AgentInfo `json:"agents"`
	Total  int                `json:"total"`
}

// Browse lists agents whose name or description contains query.
func (c *Client) Browse(query string) (*BrowseResponse, error) {
	path := "/agents"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}

	var resp BrowseResponse
	if err := c.doRequest(http.MethodGet, path, nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

type agentResponse struct {
	Agent *models.AgentInfo `json:"agent"`
}

// GetAgent returns the profile at address, or nil when there is none.
func (c *Client) GetAgent(address string) (*models.AgentInfo, error) {
	return c.agent("/agents/"+address, false)
}

// Me returns this identity's current profile, or nil before registration.
func (c *Client) Me() (*models.AgentInfo, error) {
	return c.agent("/agents/me", true)
}

func (c *Client) agent(path string, signed bool) (*models.AgentInfo, error) {
	var resp agentResponse
	if err := c.doRequest(http.MethodGet, path, nil, &resp, signed); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.Agent, nil
}

// SubmitJobResponse is the response from job submission.
type SubmitJobResponse struct {
	Address models.Address `json:"address"`
	JobURL  string         `json:"job_url"`
}

// SubmitJob records a job request.
func (c *Client) SubmitJob(input models.JobCreationInput) (*SubmitJobResponse, error) {
	var resp SubmitJobResponse
	if err := c.doRequest(http.MethodPost, "/jobs", input, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobsResponse lists this identity's jobs.
type JobsResponse struct {
	Jobs  []models.Job `json:"jobs"`
	Total int          `json:"total"`
}

// ListJobs returns the jobs submitted by this identity.
func (c *Client) ListJobs() (*JobsResponse, error) {
	var resp JobsResponse
	if err := c.doRequest(http.MethodGet, "/jobs", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob returns the job at address, or nil when there is none.
func (c *Client) GetJob(address string) (*models.Job, error) {
	var resp struct {
		Job *models.Job `json:"job"`
	}
	if err := c.doRequest(http.MethodGet, "/jobs/"+address, nil, &resp, false); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.Job, nil
}

// AdvanceResponse is the response from recording a phase transition.
type AdvanceResponse struct {
	EventAddress models.Address `json:"event_address"`
	HistoryURL   string         `json:"history_url"`
}

// Advance moves the job at address to the given phase.
func (c *Client) Advance(address string, t models.Transition) (*AdvanceResponse, error) {
	var resp AdvanceResponse
	if err := c.doRequest(http.MethodPost, "/jobs/"+address+"/phases", t, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns the phase history of the job at address, or nil when
// there is no such job.
func (c *Client) History(address string) (*models.JobHistory, error) {
	var resp struct {
		History *models.JobHistory `json:"history"`
	}
	if err := c.doRequest(http.MethodGet, "/jobs/"+address+"/history", nil, &resp, false); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.History, nil
}

// Balance returns the settlement balance of a wallet.
func (c *Client) Balance(wallet string) (*models.WalletBalance, error) {
	var resp models.WalletBalance
	if err := c.doRequest(http.MethodGet, "/wallets/"+wallet+"/balance", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Region    string                 `json:"region,omitempty"`
	Checks    map[string]struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(http.MethodGet, "/health", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}
