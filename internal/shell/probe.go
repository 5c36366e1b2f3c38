package shell

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrOtherServer means the health endpoint answered for a different process,
// usually one that already holds the port
var ErrOtherServer = errors.New("health endpoint served by another process")

// HealthProbe polls the server's health endpoint
type HealthProbe struct {
	client *resty.Client
	url    string
}

type healthResponse struct {
	Status string `json:"status"`
	Pid    int    `json:"pid"`
}

func NewHealthProbe(url string) *HealthProbe {
	return &HealthProbe{
		client: resty.New().
			SetTimeout(2 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(100 * time.Millisecond).
			SetRetryMaxWaitTime(500 * time.Millisecond),
		url: url,
	}
}

// Check returns nil when the endpoint answers 200 with the given pid.
// A pid of zero accepts any server.
func (p *HealthProbe) Check(ctx context.Context, pid int) error {
	var health healthResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&health).
		Get(p.url)
	if err != nil {
		return fmt.Errorf("health check %s failed: %w", p.url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode(), p.url)
	}
	if pid > 0 && health.Pid != pid {
		return fmt.Errorf("%w: %s reports pid %d, launched pid %d", ErrOtherServer, p.url, health.Pid, pid)
	}
	return nil
}
