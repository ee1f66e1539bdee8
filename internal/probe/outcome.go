package probe

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic fingerprint
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/samvad-hq/jsonapi-probe/internal/domain"
	"github.com/samvad-hq/jsonapi-probe/pkg/endpoints"
	"github.com/samvad-hq/jsonapi-probe/pkg/jsonapi"
)

// BuildOutcome classifies the result of calling ep.
func BuildOutcome(ep endpoints.Endpoint, res jsonapi.Result, err error, elapsed time.Duration) domain.Outcome {
	out := domain.Outcome{
		EndpointID:   ep.ID,
		EndpointName: ep.Name,
		DurationMs:   elapsed.Milliseconds(),
	}

	details := res.Details
	if err == nil {
		out.OK = true
		out.Kind = domain.OutcomeOK
		out.JSON = res.JSON
	} else {
		out.Kind = string(jsonapi.KindOf(err))
		if out.Kind == "" {
			out.Kind = string(jsonapi.KindNetwork)
		}
		details, _ = jsonapi.DetailsOf(err)
		if details.NetworkError == "" && details.HTTPStatus == 0 {
			details.NetworkError = err.Error()
		}
		out.Summary = summarize(details)
	}

	out.HTTPStatus = details.HTTPStatus
	out.HTTPReason = details.HTTPReason
	out.ContentType = details.ContentType
	out.NetworkError = details.NetworkError
	out.Errno = details.Errno
	out.Fingerprint = fingerprint(out.Kind, details)
	return out
}

// fingerprint identifies an outcome for change detection. Network failures
// are keyed by errno only since their messages embed ephemeral ports.
func fingerprint(kind string, d jsonapi.Details) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('|')
	if kind == string(jsonapi.KindNetwork) {
		b.WriteString(strconv.Itoa(d.Errno))
	} else {
		b.WriteString(strconv.Itoa(d.HTTPStatus))
		b.WriteByte('|')
		b.WriteString(d.ContentType)
		b.WriteByte('|')
		b.Write(d.Bytes)
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
