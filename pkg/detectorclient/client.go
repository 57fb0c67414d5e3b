/**
 * @description
 * This package provides a client for the bank-transaction match detector. The
 * detector watches raw bank statements, derives the reference code for each
 * observed transfer, and reports whether a transfer matching a payout's
 * instruction has been seen. A positive answer is side-effecting: the detector
 * commits the pending->approved transition atomically with the detection before
 * it responds, so the caller never issues a separate approve call.
 *
 * @dependencies
 * - context, encoding/json, errors, fmt, io, log, net, net/http, time: Standard Go libraries.
 * - github.com/sony/gobreaker: Circuit breaker around the detector endpoint.
 */
package detectorclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Client is a client for the match-detector API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new match-detector client. The circuit breaker opens after
// a run of consecutive failures so a flapping detector does not absorb the whole
// verify budget in connection timeouts.
func NewClient(baseURL, apiKey string) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "match-detector",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("level=warn component=detector_client msg=\"circuit breaker state change\" breaker=%s from=%s to=%s", name, from, to)
		},
	})

	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: breaker,
	}
}

// MatchResponse is the single accepted response schema from the detector's
// verify endpoint. The contract is strict: no alternative shapes are sniffed.
type MatchResponse struct {
	Data struct {
		Matched bool `json:"matched"`
	} `json:"data"`
}

// ErrorResponse represents an error from the detector API.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Errors     []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("detector api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return fmt.Sprintf("detector api error: status %d", e.StatusCode)
}

// transientError marks failures the verification poller absorbs as a non-match
// for the current attempt instead of aborting the session.
type transientError struct {
	cause error
}

func (e *transientError) Error() string { return fmt.Sprintf("transient detector error: %v", e.cause) }
func (e *transientError) Unwrap() error { return e.cause }

// IsTransient reports whether the error is a network/timeout/server-side failure
// that a retry on the next polling attempt may resolve.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Verify asks the detector whether a bank transaction matching the payout's
// instruction has been observed since the request was created. Safe to call
// concurrently for the same payout; duplicate suppression is the detector's
// responsibility.
func (c *Client) Verify(ctx context.Context, payoutID string) (bool, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doVerify(ctx, payoutID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false, &transientError{cause: err}
		}
		return false, err
	}
	return result.(bool), nil
}

func (c *Client) doVerify(ctx context.Context, payoutID string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/matches/%s", c.BaseURL, payoutID)

	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create verify request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-detector-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if isNetworkError(err) {
			return false, &transientError{cause: err}
		}
		return false, fmt.Errorf("failed to execute verify request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, &transientError{cause: err}
	}

	if resp.StatusCode >= 500 {
		log.Printf("level=warn component=detector_client op=verify payout_id=%s status=%d msg=\"server-side failure\"", payoutID, resp.StatusCode)
		return false, &transientError{cause: fmt.Errorf("detector returned status %d", resp.StatusCode)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=detector_client op=verify payout_id=%s status=%d msg=\"non-2xx response (unparsable error body)\"", payoutID, resp.StatusCode)
			return false, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=detector_client op=verify payout_id=%s status=%d err=%q", payoutID, resp.StatusCode, errResp.Error())
		return false, &errResp
	}

	var matchResp MatchResponse
	if err := json.Unmarshal(bodyBytes, &matchResp); err != nil {
		return false, fmt.Errorf("failed to decode verify response: %w", err)
	}

	return matchResp.Data.Matched, nil
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
