// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound integrations that move file payloads.
var HTTPClient = &http.Client{
	Timeout: 120 * time.Second,
}
