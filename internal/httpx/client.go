// Package httpx configures outbound HTTP with bounded retry and backoff.
package httpx

import (
	nethttp "net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/onlyoffice/pipedrive-int/internal/logging"
)

// Policy holds retry parameters for a client.
type Policy struct {
	// MaxRetries is the number of retry attempts after the first try.
	MaxRetries int
	// WaitMin and WaitMax bound the linear-jitter backoff between attempts.
	WaitMin time.Duration
	WaitMax time.Duration
}

// ReadPolicy returns the retry policy for short gateway/CRM reads:
// 3 attempts total with a small linear backoff.
func ReadPolicy() Policy {
	return Policy{
		MaxRetries: 2,
		WaitMin:    50 * time.Millisecond,
		WaitMax:    250 * time.Millisecond,
	}
}

// UploadPolicy returns the retry policy for multipart uploads. Bodies are
// buffered (the 20 MB limit keeps that cheap) so retries can rewind them.
func UploadPolicy() Policy {
	return Policy{
		MaxRetries: 2,
		WaitMin:    500 * time.Millisecond,
		WaitMax:    3 * time.Second,
	}
}

// retryLogger adapts the retryablehttp leveled logger to zerolog. Only
// warnings and errors are forwarded; per-request info is noise.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

func fieldMap(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

// NewClient builds a standard *http.Client that retries transient failures
// (network errors, 429 and 5xx responses) according to the policy. Per-call
// deadlines are the caller's job via context.
func NewClient(policy Policy, logger *logging.Logger) *nethttp.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = policy.MaxRetries
	retryClient.RetryWaitMin = policy.WaitMin
	retryClient.RetryWaitMax = policy.WaitMax
	retryClient.Backoff = retryablehttp.LinearJitterBackoff
	if logger != nil {
		retryClient.Logger = &retryLogger{logger: logger}
	} else {
		retryClient.Logger = nil
	}
	return retryClient.StandardClient()
}
