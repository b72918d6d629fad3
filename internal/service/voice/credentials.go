package voice

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// resolveEndpoint 构造代理地址与握手请求头，无法定位代理时直接返回错误
func resolveEndpoint(rawURL, agentID, apiKey string) (string, http.Header, error) {
	rawURL = strings.TrimSpace(rawURL)
	agentID = strings.TrimSpace(agentID)
	if rawURL == "" || agentID == "" {
		return "", nil, fmt.Errorf("voice agent URL or agent id is missing")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("invalid voice URL %q: %w", rawURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", nil, fmt.Errorf("voice URL must use ws or wss, got %q", u.Scheme)
	}

	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if key := strings.TrimSpace(apiKey); key != "" {
		header.Set("xi-api-key", key)
	}

	return u.String(), header, nil
}
