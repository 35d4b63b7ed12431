package adapters

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sip_requests_sent_total",
		Help: "SIP requests written to the wire, by method.",
	}, []string{"method"})

	responsesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sip_responses_received_total",
		Help: "SIP responses read from the wire, by status code.",
	}, []string{"status"})

	transportErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sip_transport_errors_total",
		Help: "UDP association failures (dial, send, receive).",
	})
)

// first token of the request line, e.g. "INVITE"
func methodOf(payload string) string {
	method, _, _ := strings.Cut(payload, " ")
	return method
}

// second token of the status line, e.g. "401"
func statusOf(raw string) string {
	rest, _, _ := strings.Cut(raw, "\r\n")
	fields := strings.SplitN(rest, " ", 3)
	if len(fields) < 2 {
		return "unparseable"
	}
	return fields[1]
}
