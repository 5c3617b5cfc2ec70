package order

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/go-acmeclient/engine/acme"
	"github.com/go-acmeclient/engine/acme/challenge"
	"github.com/go-acmeclient/engine/acme/jws"
	"github.com/go-acmeclient/engine/acme/resources"
)

// retryAfter reads a Retry-After header (seconds form only, as ACME
// servers send it) and falls back to def when absent or unparseable (spec
// §4.5 supplemented feature: Retry-After awareness).
func retryAfter(headers map[string][]string, def time.Duration) time.Duration {
	vals, ok := headers[acme.RETRY_AFTER_HEADER]
	if !ok || len(vals) == 0 {
		return def
	}
	secs, err := strconv.Atoi(vals[0])
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// acceptAndPoll is Pass B of spec §4.5 step 6: POST {} to accept the
// chosen challenge, then poll it to a terminal state.
//
// This is the irregular state machine the spec's Design Notes call out
// explicitly ("reimplement as a bounded iteration with explicit state
// (pendingCount, pollCount) — a more obvious state machine") rather than a
// uniform backoff.Retry: "pending" is not simply "try again", it carries
// its own MaxPending/DeauthWait recovery path distinct from "processing".
func (d *Driver) acceptAndPoll(auth challenge.Auth, identity jws.Identity) error {
	acceptResult, err := d.requester.Do(auth.URL, []byte("{}"), identity)
	if err != nil {
		return fmt.Errorf("order: accepting challenge %q: %w", auth.URL, err)
	}
	if acceptResult.StatusCode != http.StatusOK {
		return fmt.Errorf("order: accept challenge %q returned status %d: %s",
			auth.URL, acceptResult.StatusCode, string(acceptResult.Body))
	}

	wait := d.config.RetryInterval
	pollCount := 0
	pendingCount := 0

	for {
		if pollCount >= d.config.MaxPoll {
			return fmt.Errorf("order: polling challenge %q: %w", auth.URL, acme.ErrPollExhausted)
		}
		pollCount++
		time.Sleep(wait)
		wait = d.config.RetryInterval

		result, err := d.requester.Do(auth.URL, nil, identity)
		if err != nil {
			return fmt.Errorf("order: polling challenge %q: %w", auth.URL, err)
		}

		var ch resources.Challenge
		if err := json.Unmarshal(result.Body, &ch); err != nil {
			return fmt.Errorf("order: parsing challenge poll response %q: %w", auth.URL, err)
		}

		switch ch.Status {
		case "":
			return fmt.Errorf("order: challenge %q: %w", auth.URL, acme.ErrStateEmpty)
		case acme.StatusValid:
			return nil
		case acme.StatusInvalid:
			if ch.Error != nil {
				return fmt.Errorf("order: challenge %q: %w: %s", auth.URL, acme.ErrStateInvalid, ch.Error.Error())
			}
			return fmt.Errorf("order: challenge %q: %w", auth.URL, acme.ErrStateInvalid)
		case acme.StatusProcessing:
			wait = retryAfter(result.Headers, d.config.RetryInterval)
			continue
		case acme.StatusPending:
			if pendingCount >= d.config.MaxPending {
				// Stuck pending past the allowed retries: deactivate,
				// wait out the longer deauthorization interval, then
				// re-accept before resuming normal polling (spec §4.5
				// step 6, scenario S3).
				if _, err := d.requester.Do(auth.URL, []byte(`{"status":"deactivated"}`), identity); err != nil {
					return fmt.Errorf("order: deactivating stuck challenge %q: %w", auth.URL, err)
				}
				time.Sleep(d.config.DeauthWait)
				if _, err := d.requester.Do(auth.URL, []byte("{}"), identity); err != nil {
					return fmt.Errorf("order: re-accepting deactivated challenge %q: %w", auth.URL, err)
				}
				pendingCount = 0
				continue
			}
			pendingCount++
			if _, err := d.requester.Do(auth.URL, []byte("{}"), identity); err != nil {
				return fmt.Errorf("order: re-accepting challenge %q: %w", auth.URL, err)
			}
			wait = retryAfter(result.Headers, d.config.RetryInterval)
			continue
		default:
			return fmt.Errorf("order: challenge %q status %q: %w", auth.URL, ch.Status, acme.ErrStateUnknown)
		}
	}
}

// pollOrderValid is the uniform post-finalize poll (spec §4.5 step 8): the
// order is either processing (retry), valid (done), or anything else is
// a terminal failure. This uniformity is exactly what cenkalti/backoff's
// bounded retry policy models directly, unlike the challenge accept/poll
// loop above.
func (d *Driver) pollOrderValid(order *resources.Order, domains []string, identity jws.Identity) error {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(d.config.RetryInterval), uint64(d.config.MaxPoll))

	operation := func() error {
		result, err := d.requester.Do(order.OrderURL, nil, identity)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("order: polling order %q: %w", order.OrderURL, err))
		}
		if err := json.Unmarshal(result.Body, order); err != nil {
			return backoff.Permanent(fmt.Errorf("order: parsing order poll response %q: %w", order.OrderURL, err))
		}

		switch order.Status {
		case acme.StatusValid:
			return nil
		case acme.StatusProcessing:
			return fmt.Errorf("order %q still processing", order.OrderURL)
		default:
			detail := ""
			if order.Error != nil {
				detail = ": " + order.Error.Error()
			}
			return backoff.Permanent(fmt.Errorf(
				"order: %q did not reach status valid (got %q, requested domains %v)%s: %w",
				order.OrderURL, order.Status, domains, detail, acme.ErrFinalizeState))
		}
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if order.Status == acme.StatusProcessing {
			return fmt.Errorf("order: %w: %q stuck processing", acme.ErrPollExhausted, order.OrderURL)
		}
		return err
	}
	return nil
}
