package dnsenum

import (
	"context"
	"net/http"
)

// HTTPLiveness returns a liveness check that considers a host live if it
// answers an HTTP HEAD on port 80 or 443. Any response counts, including
// errors with status codes; only transport-level failure on both schemes
// fails the check.
func HTTPLiveness(client *http.Client) func(ctx context.Context, hostname string) bool {
	return func(ctx context.Context, hostname string) bool {
		for _, scheme := range []string{"http", "https"} {
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, scheme+"://"+hostname, nil)
			if err != nil {
				continue
			}
			resp, err := client.Do(req)
			if err != nil {
				continue
			}
			resp.Body.Close()
			return true
		}
		return false
	}
}
