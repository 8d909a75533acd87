package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the external-service clients (sandbox, hints).
// Their latency is externally imposed and measured in seconds.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
