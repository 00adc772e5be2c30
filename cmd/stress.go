package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/yashasviy/bank-ledger-api/middleware"
	"github.com/yashasviy/bank-ledger-api/models"
)

const (
	// DefaultURL is the base URL of the API under test
	DefaultURL = "http://localhost:8080"

	// DefaultConcurrency is the number of concurrent deposits
	DefaultConcurrency = 50

	// DefaultAmount is the amount of each deposit
	DefaultAmount = "10.00"
)

// stressConfig holds the stress run configuration
type stressConfig struct {
	BaseURL            string
	LastName           string
	ConcurrentRequests int
	Amount             decimal.Decimal
}

// stressResults tracks the outcomes of all requests
type stressResults struct {
	SuccessCount  int32
	CacheHitCount int32
	ConflictCount int32
	ErrorCount    int32
	Duration      time.Duration

	Opening decimal.Decimal
	Closing decimal.Decimal
	Replay  string
	// ReplayApplied is set when the server had no idempotency cache and the replay moved money.
	ReplayApplied bool
}

var (
	stressURL         string
	stressLastName    string
	stressConcurrency int
	stressAmount      string
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Fire concurrent deposits at a running server and check no update was lost",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(stressAmount)
		if err != nil {
			return fmt.Errorf("invalid --amount: %w", err)
		}
		cfg := stressConfig{
			BaseURL:            stressURL,
			LastName:           stressLastName,
			ConcurrentRequests: stressConcurrency,
			Amount:             amount,
		}
		if cfg.LastName == "" {
			cfg.LastName = "stress-" + uuid.NewString()[:8]
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "  BANK LEDGER API - CONCURRENT STRESS TEST")
		fmt.Fprintf(out, "Endpoint:       %s\n", cfg.BaseURL)
		fmt.Fprintf(out, "Account:        %s\n", cfg.LastName)
		fmt.Fprintf(out, "Concurrency:    %d deposits\n", cfg.ConcurrentRequests)
		fmt.Fprintf(out, "Deposit:        %s each\n", cfg.Amount)
		fmt.Fprintln(out, "---------------------------------------------------------------")

		results, err := runStress(cmd.Context(), &http.Client{Timeout: 10 * time.Second}, cfg)
		if err != nil {
			return err
		}
		return printStressResults(out, results, cfg)
	},
}

func init() {
	stressCmd.Flags().StringVar(&stressURL, "url", DefaultURL, "API base URL")
	stressCmd.Flags().StringVar(&stressLastName, "account", "", "last name of the account to deposit into (random when empty)")
	stressCmd.Flags().IntVar(&stressConcurrency, "concurrent", DefaultConcurrency, "number of concurrent deposits")
	stressCmd.Flags().StringVar(&stressAmount, "amount", DefaultAmount, "amount of each deposit")
	rootCmd.AddCommand(stressCmd)
}

// runStress creates the account if needed, fires the deposits, replays one
// idempotency key and reads the closing balance.
func runStress(ctx context.Context, client *http.Client, cfg stressConfig) (*stressResults, error) {
	results := &stressResults{}

	status, _, err := postJSON(ctx, client, cfg.BaseURL+"/api/account", "", models.CreateAccountRequest{
		FirstName: "Stress",
		LastName:  cfg.LastName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return nil, fmt.Errorf("failed to create account: unexpected status %d", status)
	}

	results.Opening, err = fetchBalance(ctx, client, cfg)
	if err != nil {
		return nil, err
	}

	var (
		wg       sync.WaitGroup
		start    = time.Now()
		firstKey = uuid.NewString()
	)
	for i := 0; i < cfg.ConcurrentRequests; i++ {
		key := uuid.NewString()
		if i == 0 {
			key = firstKey
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			deposit(ctx, client, cfg, key, results)
		}(key)
	}
	wg.Wait()
	results.Duration = time.Since(start)

	// Replaying a finished request must not move money.
	results.Replay = "not replayed (idempotency disabled on server)"
	if hit, err := depositOnce(ctx, client, cfg, firstKey); err != nil {
		results.Replay = "replay failed: " + err.Error()
	} else if hit {
		results.Replay = "replayed from cache"
	} else {
		results.ReplayApplied = true
	}

	results.Closing, err = fetchBalance(ctx, client, cfg)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// deposit sends one deposit and classifies the response.
func deposit(ctx context.Context, client *http.Client, cfg stressConfig, key string, results *stressResults) {
	status, header, err := postJSON(ctx, client, depositURL(cfg), key, models.TransactionRequest{Amount: &cfg.Amount})
	switch {
	case err != nil:
		atomic.AddInt32(&results.ErrorCount, 1)
	case header.Get(middleware.ReplayHeader) == "true":
		atomic.AddInt32(&results.CacheHitCount, 1)
	case status == http.StatusAccepted:
		atomic.AddInt32(&results.SuccessCount, 1)
	case status == http.StatusConflict:
		atomic.AddInt32(&results.ConflictCount, 1)
	default:
		atomic.AddInt32(&results.ErrorCount, 1)
	}
}

// depositOnce replays key and reports whether the server answered from its idempotency cache.
func depositOnce(ctx context.Context, client *http.Client, cfg stressConfig, key string) (bool, error) {
	status, header, err := postJSON(ctx, client, depositURL(cfg), key, models.TransactionRequest{Amount: &cfg.Amount})
	if err != nil {
		return false, err
	}
	if status != http.StatusAccepted {
		return false, fmt.Errorf("unexpected status %d", status)
	}
	return header.Get(middleware.ReplayHeader) == "true", nil
}

func depositURL(cfg stressConfig) string {
	return cfg.BaseURL + "/api/transaction/" + cfg.LastName + "/deposit"
}

func postJSON(ctx context.Context, client *http.Client, url, idempotencyKey string, body any) (int, http.Header, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(middleware.IdempotencyHeader, idempotencyKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, resp.Header, nil
}

func fetchBalance(ctx context.Context, client *http.Client, cfg stressConfig) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/account/"+cfg.LastName, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("failed to read balance: unexpected status %d", resp.StatusCode)
	}

	var view models.AccountView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode account: %w", err)
	}
	return view.Balance, nil
}

// expectedClosing is the balance the account must end on if no deposit was lost or applied twice.
func (r *stressResults) expectedClosing(amount decimal.Decimal) decimal.Decimal {
	applied := r.SuccessCount
	if r.ReplayApplied {
		applied++
	}
	return r.Opening.Add(amount.Mul(decimal.NewFromInt32(applied)))
}

// printStressResults writes the report and returns an error when the run failed.
func printStressResults(out io.Writer, results *stressResults, cfg stressConfig) error {
	fmt.Fprintln(out, "                    TEST RESULTS")
	fmt.Fprintf(out, "Duration:                     %v\n", results.Duration)
	fmt.Fprintf(out, "Requests per second:          %.2f\n", float64(cfg.ConcurrentRequests)/results.Duration.Seconds())
	fmt.Fprintf(out, "[SUCCESS] Applied deposits:    %d\n", results.SuccessCount)
	fmt.Fprintf(out, "[CACHED]  Cache hits:          %d\n", results.CacheHitCount)
	fmt.Fprintf(out, "[BLOCKED] Conflicts:           %d\n", results.ConflictCount)
	fmt.Fprintf(out, "[ERROR]   Errors:              %d\n", results.ErrorCount)
	fmt.Fprintf(out, "Replay of first key:          %s\n", results.Replay)
	fmt.Fprintf(out, "Balance:                      %s -> %s\n", results.Opening, results.Closing)

	expected := results.expectedClosing(cfg.Amount)
	if int(results.SuccessCount) == cfg.ConcurrentRequests && results.Closing.Equal(expected) {
		fmt.Fprintln(out, "TEST PASSED: every deposit applied exactly once")
		return nil
	}

	fmt.Fprintln(out, "TEST FAILED")
	if !results.Closing.Equal(expected) {
		fmt.Fprintf(out, "  * CRITICAL: expected balance %s, got %s (lost or duplicated update)\n", expected, results.Closing)
	}
	if int(results.SuccessCount) != cfg.ConcurrentRequests {
		fmt.Fprintf(out, "  * Only %d of %d deposits succeeded\n", results.SuccessCount, cfg.ConcurrentRequests)
	}
	return fmt.Errorf("stress test failed")
}
