package adapters

import (
	"fmt"
	"strconv"
	"strings"
)

// the protocol marker every request line carries and every status line
// must begin with
const sipVersion = "SIP/2.0"

// advertised in every outgoing request
const userAgent = "ring_and_rip/1.0"

// MalformedResponseError - the response text does not begin with the
// expected protocol marker, or a header line lacks a colon separator.
// Never retried; it surfaces to the caller of HandleResponse.
type MalformedResponseError struct {
	Line string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed sip response: %q", e.Line)
}

// Request - one outgoing SIP request before encoding. The CSeqMethod is
// kept separate from Method because an ACK sent after a 401 carries the
// method name of the request it acknowledges in its CSeq line, while a
// CANCEL's CSeq line reads "CANCEL".
type Request struct {
	Method     string
	URITo      string
	URIFrom    string
	URIVia     string
	Branch     string
	Tag        string
	CallID     string
	CSeq       int
	CSeqMethod string
	// extra header lines appended verbatim after the mandatory block
	Headers []string
}

// Encode - produces the CRLF-joined header block with a blank-line
// terminator and an empty body, one datagram's worth of SIP.
func (r Request) Encode() string {
	lines := []string{
		fmt.Sprintf("%s %s %s", r.Method, r.URITo, sipVersion),
		fmt.Sprintf("Via: %s/UDP %s;rport;branch=%s", sipVersion, r.URIVia, r.Branch),
		fmt.Sprintf("To: %s", r.URITo),
		fmt.Sprintf("From: %s;tag=%s", r.URIFrom, r.Tag),
		fmt.Sprintf("CSeq: %d %s", r.CSeq, r.CSeqMethod),
		fmt.Sprintf("Call-ID: %s", r.CallID),
		"Max-Forwards: 70",
		fmt.Sprintf("User-Agent: %s", userAgent),
	}
	lines = append(lines, r.Headers...)

	// the blank line terminating the (empty) body
	return strings.Join(lines, "\r\n") + "\r\n\r\n"
}

// ParseResponse - parses a raw SIP response into its status code and a
// case-sensitive header mapping. On duplicate header names the last
// occurrence wins. Parsing stops at the first blank line; this client
// never expects a response body.
func ParseResponse(raw string) (int, map[string]string, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	status, err := parseStatusLine(lines[0])
	if err != nil {
		return 0, nil, err
	}

	headers := make(map[string]string)
	for _, line := range lines[1:] {
		if line == "" {
			break
		}

		name, value, found := strings.Cut(line, ":")
		if !found {
			return 0, nil, &MalformedResponseError{Line: line}
		}

		headers[name] = strings.TrimSpace(value)
	}

	return status, headers, nil
}

func parseStatusLine(line string) (int, error) {
	fields := strings.SplitN(line, " ", 3)
	if fields[0] != sipVersion || len(fields) < 2 {
		return 0, &MalformedResponseError{Line: line}
	}

	status, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, &MalformedResponseError{Line: line}
	}

	return status, nil
}
