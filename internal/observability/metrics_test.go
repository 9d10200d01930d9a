package observability

import (
	"testing"
	"time"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordAccept("request-portal")
	RecordDispatch("request-portal", "StartRequest", 3*time.Millisecond)
	RecordConnectionFailure("request-portal", "decode")
	RecordAcceptFailure("request-portal")
	RecordDisconnect("request-portal")
	RecordHTTPRequest("request", "GET", "/health", 200, 12*time.Millisecond)
}
