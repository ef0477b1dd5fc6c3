package transport

import (
	"encoding/json"

	applog "beatsketch/internal/log"
)

// LoggingTransport implements the Transport interface by logging each
// payload as JSON at debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data. Payloads that cannot be marshalled are
// logged with %+v instead.
func (lt *LoggingTransport) Send(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		applog.Debugf("Transport: %T %+v (marshal error: %v)", data, data, err)
		return nil
	}
	applog.Debugf("Transport: %s", b)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
