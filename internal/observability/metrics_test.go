package observability

import (
	"testing"
	"time"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordFrameSent()
	RecordFrameReceived()
	RecordDecodeError()
	RecordConnectAttempt()
	RecordConnectFailure()
	RecordProvisionAttempt()
	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
}
