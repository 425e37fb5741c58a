package nodeclient

import "net/http"

// AuthTransport is an http.RoundTripper that adds an Authorization header to
// every node request, used for gated RPC/REST providers
type AuthTransport struct {
	Transport http.RoundTripper
	Token     string
}

func (c *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// requests must not be mutated by a RoundTripper
	clonedReq := req.Clone(req.Context())
	clonedReq.Header.Set("Authorization", "Bearer "+c.Token)
	return c.Transport.RoundTrip(clonedReq)
}
